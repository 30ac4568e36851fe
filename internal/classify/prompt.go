package classify

import (
	"encoding/json"
	"fmt"
	"strings"
)

const systemPrompt = `You classify WhatsApp messages sent to a small Israeli home-services business.
Decide whether the message is a business inquiry (a request for service, repair,
installation or pricing) or private correspondence. Respond with a single JSON
object and nothing else:
{"is_business_inquiry":bool,"intent":string,"urgency":"low"|"normal"|"high",
"sentiment":string,"requires_media":bool,"needs_address":bool,
"suggested_products":[string],"summary":string,"suggested_response":string}
The suggested_response must be in the language of the message.`

// buildUserPrompt renders the message plus the customer context. Fields the
// business already has on file are listed so the model never asks for them
// again in suggested_response.
func buildUserPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message: %s\n", in.Text)

	if len(in.History) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, h := range in.History {
			fmt.Fprintf(&b, "- %s\n", h)
		}
	}

	var known []string
	if in.Known.Name != "" {
		known = append(known, "name: "+in.Known.Name)
	}
	if in.Known.Address != "" {
		known = append(known, "address: "+in.Known.Address)
	}
	if in.Known.City != "" {
		known = append(known, "city: "+in.Known.City)
	}
	if len(known) > 0 {
		b.WriteString("Already on file, never request these again: ")
		b.WriteString(strings.Join(known, ", "))
		b.WriteString("\n")
		if in.Known.Address != "" {
			b.WriteString("needs_address must be false.\n")
		}
	}
	return b.String()
}

// parseResult extracts the JSON verdict from a model reply, tolerating code
// fences and surrounding prose.
func parseResult(raw string) (Result, error) {
	raw = strings.TrimSpace(raw)
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var res Result
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return Result{}, fmt.Errorf("classify: malformed model response: %w", err)
	}
	return res, nil
}
