package classify

import (
	"context"
	"strings"
)

// minInquiryLength is the minimum message length for the keyword matcher to
// call something a business inquiry. Short messages with a keyword hit are
// still dropped; silence beats a wrong auto-reply.
const minInquiryLength = 20

// privateKeywords mark social chit-chat. Any hit wins over everything else.
var privateKeywords = []string{
	"בוקר טוב", "ערב טוב", "לילה טוב", "מה נשמע", "מה שלומך", "מה קורה",
	"שבת שלום", "חג שמח", "מזל טוב", "תודה רבה", "אוהב אותך", "מתגעגע",
	"נתראה", "להתראות",
	"good morning", "good evening", "how are you", "what's up", "thank you",
	"thanks", "love you", "miss you", "see you",
}

// businessKeywords mark likely service requests.
var businessKeywords = []string{
	"תריס", "תריסים", "תקוע", "תקועה", "שבור", "שבורה", "מקולקל", "מקולקלת",
	"תיקון", "לתקן", "התקנה", "להתקין", "הצעת מחיר", "מחיר", "דחוף",
	"לא עובד", "לא נפתח", "לא נסגר", "בעיה", "תקלה", "חלון", "דלת", "מנוע",
	"חשמלי", "סורג", "רשת",
	"repair", "broken", "stuck", "fix", "quote", "price", "urgent",
	"install", "shutter", "window", "door", "motor", "problem",
}

// KeywordClassifier is the deterministic fallback detector. It first checks
// the private-chat list, then requires both a business keyword and a message
// longer than minInquiryLength; everything else is not a business inquiry.
type KeywordClassifier struct{}

// NewKeywordClassifier returns the keyword fallback detector.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify applies the keyword rules. It never fails.
func (k *KeywordClassifier) Classify(ctx context.Context, in Input) (Result, error) {
	text := strings.ToLower(strings.TrimSpace(in.Text))

	for _, kw := range privateKeywords {
		if strings.Contains(text, kw) {
			return Result{IsBusinessInquiry: false, Intent: "private_chat"}, nil
		}
	}

	if len([]rune(in.Text)) > minInquiryLength {
		for _, kw := range businessKeywords {
			if strings.Contains(text, kw) {
				return Result{
					IsBusinessInquiry: true,
					Intent:            "service_request",
					Urgency:           keywordUrgency(text),
					RequiresMedia:     true,
					NeedsAddress:      in.Known.Address == "",
				}, nil
			}
		}
	}

	return Result{IsBusinessInquiry: false}, nil
}

func keywordUrgency(text string) string {
	if strings.Contains(text, "דחוף") || strings.Contains(text, "urgent") {
		return "high"
	}
	return "normal"
}
