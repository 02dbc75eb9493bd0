package vision

import (
	"context"
	"fmt"
	"strings"
)

// ImageAnalysisPrompt instructs the vision model to produce a structured,
// exhaustive description of an image. The resulting text stands in for the
// image during indexing: it is chunked and embedded like document text, so
// image content becomes searchable with a text-only embedding model.
const ImageAnalysisPrompt = `Analyze this image in extreme detail. Structure your analysis as follows:

1. General Overview:
   - Main subject/focus
   - Overall composition
   - Time of day/lighting conditions
   - Color palette

2. Key Elements:
   - Foreground elements and their details
   - Background elements and their details
   - Any text or symbols present
   - Notable patterns or textures

3. Technical Details:
   - Image quality and clarity
   - Perspective and depth
   - Lighting and shadows

4. Contextual Information:
   - Setting/environment
   - Mood/atmosphere
   - Apparent purpose or context
   - Any cultural or historical references

5. Additional Details:
   - Small or subtle elements
   - Interesting features
   - Any unique or unusual aspects

6. If the image contains text:
   - Transcribe and interpret the text and its relevance to the overall image
   - Note any discrepancies between text and image

Be thorough and precise, noting even minor details that might be relevant for future queries.`

// ImageAnalysisOptions are the sampling parameters for image analysis.
// Low temperature keeps the description factual; num_predict bounds the
// analysis length so indexing stays fast.
var ImageAnalysisOptions = &Options{
	Temperature: 0.2,
	NumPredict:  500,
}

// DefaultSystemPrompt is the system prompt applied to user-facing answers
// when none is configured.
const DefaultSystemPrompt = "Give answer in short."

// AnalyzeImage runs the structured analysis prompt over one base64-encoded
// image and returns the description text.
func (c *Client) AnalyzeImage(ctx context.Context, base64Image string) (string, error) {
	text, err := c.Generate(ctx, &GenerateRequest{
		Prompt:  ImageAnalysisPrompt,
		Images:  []string{base64Image},
		Options: ImageAnalysisOptions,
	})
	if err != nil {
		return "", fmt.Errorf("vision: image analysis failed: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("vision: image analysis returned empty description")
	}
	return text, nil
}
