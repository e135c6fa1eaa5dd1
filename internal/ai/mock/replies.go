package mock

import (
	"fmt"
	"strings"
	"unicode"
)

const SNLPrescription = `
**SUPPLEMENTS & FORMULATIONS:**
- Mock Supplement 1 - 500mg - Twice daily
- Mock Supplement 2 - 250mg - Once daily

**NUTRITION PLAN:**
- Foods to Include: Mock foods list
- Foods to Avoid: Mock avoid list

**LIFESTYLE RECOMMENDATIONS:**
- Wake time: 6:00 AM
- Exercise: 30 minutes daily
- Sleep: 10:00 PM

`

const KnowledgeReferences = `
**CLASSICAL REFERENCES:**
1. Charaka Samhita - Mock reference
2. Sushruta Samhita - Mock reference

**CLINICAL STUDIES:**
1. Mock Study Title - Journal Name 2023
2. Mock Study 2 - Another Journal 2024

(This is mock data; configure AI_PROVIDER for generated references)
`

// keywordReply pairs trigger words with a canned answer. Single words match
// whole words only; phrases match as substrings.
type keywordReply struct {
	words []string
	reply string
}

var keywordReplies = []keywordReply{
	{
		words: []string{"hello", "hi", "hey", "namaste"},
		reply: "Namaste! 🙏 I'm AyuPilot, your Ayurvedic AI assistant. I can help you with:\n\n" +
			"• Ayurvedic health recommendations\n" +
			"• Dosha analysis (Vata, Pitta, Kapha)\n" +
			"• Herbal remedies and treatments\n" +
			"• Dietary advice based on Ayurvedic principles\n" +
			"• Lifestyle modifications for wellness\n\n" +
			"How can I assist you today?",
	},
	{
		words: []string{"help", "what can you", "do", "assist"},
		reply: "I can assist you with various aspects of Ayurvedic medicine:\n\n" +
			"🌿 **Health Assessment**: Understanding your dosha type\n" +
			"💊 **Remedies**: Suggesting Ayurvedic treatments and herbs\n" +
			"🍽️ **Diet**: Personalized dietary recommendations\n" +
			"🧘 **Lifestyle**: Yoga, meditation, and daily routines\n" +
			"📚 **Education**: Explaining Ayurvedic concepts\n\n" +
			"What specific topic would you like to explore?",
	},
	{
		words: []string{"vata", "pitta", "kapha", "dosha"},
		reply: "The three doshas are fundamental to Ayurveda:\n\n" +
			"**Vata** (Air + Space): Governs movement, creativity, flexibility\n" +
			"**Pitta** (Fire + Water): Controls digestion, metabolism, energy\n" +
			"**Kapha** (Earth + Water): Manages structure, stability, immunity\n\n" +
			"Each person has a unique dosha balance. Would you like to learn more " +
			"about any specific dosha or get a personalized assessment?",
	},
	{
		words: []string{"diet", "food", "eat", "nutrition"},
		reply: "Ayurvedic nutrition focuses on eating according to your dosha:\n\n" +
			"• **Warm, cooked foods** are easier to digest\n" +
			"• **Six tastes**: Sweet, sour, salty, pungent, bitter, astringent\n" +
			"• **Seasonal eating**: Align diet with nature's cycles\n" +
			"• **Mindful eating**: Eat in a calm environment\n\n" +
			"Would you like specific dietary recommendations based on your constitution?",
	},
	{
		words: []string{"sick", "pain", "cold", "fever", "headache"},
		reply: "For common ailments, Ayurveda suggests:\n\n" +
			"🌡️ **Cold/Flu**: Ginger tea, turmeric milk, rest\n" +
			"🤕 **Headache**: Peppermint oil, proper hydration, stress relief\n" +
			"💊 **Digestion**: Triphala, fennel seeds, warm water\n\n" +
			"⚠️ Note: For serious symptoms, please consult a qualified healthcare provider. " +
			"What symptoms are you experiencing?",
	},
}

// ChatReply returns the canned answer for the first keyword group that the
// message mentions, or a generic acknowledgement quoting the question.
func ChatReply(message string) string {
	lower := strings.ToLower(message)
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool { return !unicode.IsLetter(r) }) {
		words[w] = true
	}

	for _, kr := range keywordReplies {
		for _, kw := range kr.words {
			if strings.Contains(kw, " ") {
				if strings.Contains(lower, kw) {
					return kr.reply
				}
			} else if words[kw] {
				return kr.reply
			}
		}
	}

	return fmt.Sprintf("Thank you for your question about '%s'. "+
		"As an Ayurvedic assistant, I'm here to provide guidance on:\n\n"+
		"• Health and wellness based on Ayurvedic principles\n"+
		"• Natural remedies and herbal treatments\n"+
		"• Lifestyle recommendations\n\n"+
		"💡 **For real AI-powered responses**: set AI_PROVIDER to openai, anthropic, ollama or vllm.\n\n"+
		"How else can I help you today?", truncateRunes(message, 50))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
