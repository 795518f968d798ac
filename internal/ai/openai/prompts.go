package openai

const (
	classifierPrompt = "Tu es un assistant de voyage spécialisé sur Tokyo. " +
		"Ce texte décrit-il un lieu physique unique et visitable à Tokyo ? " +
		"Réponds uniquement par OUI ou NON."

	rewriterPrompt = "Tu es un rédacteur de guides de voyage au style 'lovely' et poétique. " +
		"En te basant sur le texte suivant, rédige une description 100% unique et originale " +
		"qui capture l'ambiance et l'émotion du lieu. Ne copie aucune phrase."

	extractorPrompt = "En te basant sur le texte suivant, extrais les informations ci-dessous au format JSON. " +
		"Si une information est introuvable, retourne null.\n" +
		`{ "name": string, "neighborhood": string, "summary": string, "keywords": string[] }`
)
