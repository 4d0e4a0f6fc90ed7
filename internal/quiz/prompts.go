package quiz

// Prompts are in Finnish: the tutor quizzes Finnish-speaking students.
const (
	questionPrompt     = "Luo yksi yksinkertainen ja selkeä kysymys ja sen vastaus yllä olevasta tekstistä suomeksi. Kysy vain yksi asia kerrallaan."
	nextQuestionPrompt = "Luo toinen yksinkertainen ja selkeä kysymys ja sen vastaus yllä olevasta tekstistä suomeksi: %s. Kysy vain yksi asia kerrallaan."

	graderPersona = "Olet aina ystävällinen opettaja joka arvioi oppilaan vastauksen kohteliaaseen sävyyn."
	gradingPrompt = "Arvioi opiskelijan vastaus asteikolla 0-10 ja anna lyhyt selitys ystävällisin ja kannustavin sanoin."
	questionLabel = "Kysymys: "
	correctLabel  = "Oikea vastaus: "
	studentLabel  = "Opiskelijan vastaus: "
)
