package ai

import "strings"

// maxPromptText bounds the OCR text sent to a model.
const maxPromptText = 12000

const extractionRules = `IMPORTANT RULES:
1. ONLY extract actual artist/performer names
2. IGNORE: venue names, festival names, dates, times, ticket prices, sponsors, food vendors, general information
3. IGNORE: words like "presents", "featuring", "with", "and", "vs", "b2b", "live", "dj set"
4. Include a confidence score (0.0-1.0) based on how certain you are it is an artist name`

const responseFormat = `Return ONLY a valid JSON array in this exact format:
[
    {"name": "Artist Name", "confidence": 0.95},
    {"name": "Band Name", "confidence": 0.87},
    {"name": "DJ Name", "confidence": 0.92}
]`

const performerKinds = `This includes:
- Headliner artists
- Supporting acts
- DJs and electronic music artists
- Bands of all genres
- Solo performers
- Musical groups and collectives`

// TextPrompt builds the prompt for extracting artists from OCR text.
func TextPrompt(text string) string {
	text = cutUTF8(text, maxPromptText)

	var b strings.Builder
	b.WriteString("You are an expert music industry professional specializing in festival lineups and artist identification.\n\n")
	b.WriteString("Analyze the following text extracted from a music festival flyer and identify ALL artist and band names mentioned. ")
	b.WriteString(performerKinds)
	b.WriteString("\n\n")
	b.WriteString(extractionRules)
	b.WriteString("\n5. Consider context clues like typography, positioning, and surrounding text\n\n")
	b.WriteString(responseFormat)
	b.WriteString("\n\nText to analyze:\n")
	b.WriteString(text)
	b.WriteString("\n\nJSON Response:")
	return b.String()
}

// ImagePrompt builds the prompt for extracting artists from a flyer image.
func ImagePrompt() string {
	var b strings.Builder
	b.WriteString("You are an expert music industry professional analyzing a festival flyer image.\n\n")
	b.WriteString("Look at this festival flyer image and identify ALL artist and band names that are performing. ")
	b.WriteString(performerKinds)
	b.WriteString("\n\n")
	b.WriteString(extractionRules)
	b.WriteString("\n5. Larger text usually indicates headliners; weigh confidence by legibility and prominence\n\n")
	b.WriteString(responseFormat)
	b.WriteString("\n\nAnalyze the image carefully and extract all visible artist names:")
	return b.String()
}
