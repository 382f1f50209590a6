package registry

// Localized adapter copy. Unknown languages fall back to English.
var texts = map[string]map[string]string{
	"en": {
		"calendarPrompt": "I'd be happy to schedule a consultation for you. What date and time work best for you?",
		"noSlots":        "No available slots found for that date. Here are other days we can see you.",
		"booked":         "Great! I've scheduled your consultation. Your confirmation number is %s. You'll receive a confirmation email shortly.",
		"bookingFailed":  "I'm sorry, I couldn't book that appointment. %s",
		"bookingRetry":   "Please try a different time slot.",
		"uploadPrompt":   "I can help analyze your documents. Please upload the documents you'd like me to review.",
		"emptyAnalysis":  "Thank you for the details. An attorney will review your situation.",
		"intakeDone":     "Thank you. Your intake has been recorded.",
	},
	"es": {
		"calendarPrompt": "Con gusto programaré una consulta para usted. ¿Qué fecha y hora le convienen?",
		"noSlots":        "No hay horarios disponibles para esa fecha. Estos son otros días disponibles.",
		"booked":         "¡Excelente! He programado su consulta. Su número de confirmación es %s. Recibirá un correo de confirmación en breve.",
		"bookingFailed":  "Lo siento, no pude reservar esa cita. %s",
		"bookingRetry":   "Por favor intente con otro horario.",
		"uploadPrompt":   "Puedo ayudarle a analizar sus documentos. Por favor suba los documentos que desea que revise.",
		"emptyAnalysis":  "Gracias por los detalles. Un abogado revisará su situación.",
		"intakeDone":     "Gracias. Su admisión ha sido registrada.",
	},
}

func text(lang, key string) string {
	if m, ok := texts[lang]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return texts["en"][key]
}
