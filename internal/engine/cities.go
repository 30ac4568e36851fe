package engine

import "strings"

// knownCities is the fixed city list used for substring extraction from a
// free-text address. Order matters: longer names first so "תל אביב" wins
// before a shorter token could match inside it.
var knownCities = []string{
	"ראשון לציון",
	"פתח תקווה",
	"קריית גת",
	"קריית אונו",
	"רמת השרון",
	"באר שבע",
	"תל אביב",
	"בני ברק",
	"כפר סבא",
	"בת ים",
	"ירושלים",
	"הרצליה",
	"רחובות",
	"אשקלון",
	"רעננה",
	"נתניה",
	"אשדוד",
	"חולון",
	"רמלה",
	"חיפה",
	"רמת גן",
	"גבעתיים",
	"הוד השרון",
	"מודיעין",
	"לוד",
	"עפולה",
	"חדרה",
	"נהריה",
	"עכו",
	"טבריה",
	"אילת",
}

// extractCity returns the first known city appearing in the address text.
func extractCity(address string) string {
	for _, city := range knownCities {
		if strings.Contains(address, city) {
			return city
		}
	}
	return ""
}
