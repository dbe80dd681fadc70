package config

// personaPrompts maps each persona category to the system prompt injected
// ahead of the conversation history. Every prompt pins the reply language so
// the response matches the pinned transcription language.
var personaPrompts = map[Category]string{
	CategoryGeneral:     "You are a helpful life coach providing general advice and guidance. Always respond in English.",
	CategorySoftSkills:  "You are an expert in soft skills and communication coaching. Always respond in English.",
	CategoryInterview:   "You are an experienced interview coach and career counselor. Always respond in English.",
	CategoryPersonality: "You are a personality development coach focusing on personal growth. Always respond in English.",
}

// PersonaPrompt returns the system prompt for c. Unknown categories fall back
// to the general persona.
func PersonaPrompt(c Category) string {
	if p, ok := personaPrompts[c]; ok {
		return p
	}
	return personaPrompts[CategoryGeneral]
}
