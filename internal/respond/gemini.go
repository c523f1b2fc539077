package respond

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/Lester-Fong/weather-forecaster-agent/internal/cache"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/config"
	"github.com/Lester-Fong/weather-forecaster-agent/internal/model"
)

// Composer turns a weather document into a conversational answer via the
// Gemini generateContent endpoint. Generated answers are cached by prompt
// hash so repeated questions within the TTL skip the model round-trip.
type Composer struct {
	client *resty.Client
	apiURL string
	model  string
	apiKey string
	cache  cache.Store
	ttl    time.Duration
	log    *zap.SugaredLogger
	now    func() time.Time
}

func NewComposer(cfg *config.Config, store cache.Store, log *zap.SugaredLogger) *Composer {
	client := resty.New().
		SetTimeout(cfg.Server.OutboundTimeout).
		SetHeader("Content-Type", "application/json")
	return &Composer{
		client: client,
		apiURL: strings.TrimRight(cfg.Gemini.APIURL, "/"),
		model:  cfg.Gemini.Model,
		apiKey: cfg.Gemini.APIKey,
		cache:  store,
		ttl:    cfg.Gemini.CacheDuration,
		log:    log,
		now:    time.Now,
	}
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Compose returns the generated answer and true on success. Any failure
// (no key, transport error, empty candidates) returns false so the caller can
// fall back to the templated formatter.
func (c *Composer) Compose(ctx context.Context, query string, loc *model.Location, dateInfo *model.DateInfo, queryType model.QueryType, doc model.Document) (string, bool) {
	if c.apiKey == "" {
		return "", false
	}

	prompt := c.buildPrompt(query, loc, dateInfo, queryType, doc)
	key := responseCacheKey(prompt)
	if cached, ok := c.cache.Get(ctx, key); ok {
		return string(cached), true
	}

	body := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 800,
		},
	}

	var parsed generateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("key", c.apiKey).
		SetBody(body).
		SetResult(&parsed).
		Post(fmt.Sprintf("%s/models/%s:generateContent", c.apiURL, c.model))
	if err != nil {
		c.log.Warnw("gemini request failed", "error", err)
		return "", false
	}
	if resp.IsError() {
		c.log.Warnw("gemini request rejected", "status", resp.StatusCode())
		return "", false
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		c.log.Warnw("gemini response had no candidates")
		return "", false
	}

	text := formatResponseText(parsed.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", false
	}
	c.cache.Put(ctx, key, []byte(text), c.ttl)
	return text, true
}

func (c *Composer) buildPrompt(query string, loc *model.Location, dateInfo *model.DateInfo, queryType model.QueryType, doc model.Document) string {
	var b strings.Builder

	b.WriteString("You are a friendly, knowledgeable weather assistant having a conversation with a user.\n\n")
	fmt.Fprintf(&b, "The user asked: \"%s\"\n", query)
	fmt.Fprintf(&b, "Location: %s\n", loc.Label())
	if dateInfo != nil {
		fmt.Fprintf(&b, "Date asked about: %s (%s, \"%s\")\n", dateInfo.Formatted, dateInfo.Type, dateInfo.Text)
	}
	fmt.Fprintf(&b, "Question type: %s\n\n", queryType)

	b.WriteString("Weather data:\n")
	b.WriteString(buildBriefing(doc, c.now()))
	b.WriteString("\n\n")

	b.WriteString(`Instructions:
1. Answer in a warm, conversational tone, like a helpful friend who knows the weather well.
2. Base everything strictly on the weather data above. Never invent values that are not in the data.
3. Structure the answer in 4 to 6 short paragraphs.
4. Open with a greeting that names the location and summarizes the current conditions.
5. Answer the user's specific question directly in the next paragraph.
6. Use future tense ("will be", "expect", "is looking like") when the question is about a future date.
7. Use present tense for current conditions.
8. If the requested detail is missing from the data, say so briefly instead of guessing.
9. Do not mention APIs, data sources, models, or that you are an assistant.
10. Always include the country when naming the location, exactly as given above.
11. Mention the temperature with the °C unit and round to whole degrees.
12. Add one paragraph of practical advice (clothing, umbrella, activities) that follows from the conditions.
13. When hourly data is available and relevant, introduce it with a single short line such as "Here's how the next few hours look:".
14. Format each hourly entry on its own line as: <emoji> <time>: <condition>, <temperature>°C
15. Separate the hourly block from surrounding paragraphs with blank lines.
16. Keep sentences short. Avoid filler phrases.
17. If CURRENT_TIME shows evening or night hours, acknowledge the time of day naturally.
18. End with a brief friendly closing sentence, not a question.
19. Write plain text only. No markdown headings or bold.`)

	return b.String()
}

func responseCacheKey(prompt string) string {
	sum := md5.Sum([]byte(prompt))
	return "gemini:" + hex.EncodeToString(sum[:])
}
