package engine

import (
	"fmt"
	"strings"

	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/state"
)

// Customer-facing texts.
const (
	msgAskName = `נעים מאוד! איך קוראים לך?`

	msgAskDescription = `תודה! ספר לי בבקשה מה הבעיה או מה השירות שאתה צריך.`

	msgAskAddress = `מעולה. מה הכתובת שלך? (רחוב, מספר ועיר)`

	msgAskPhotos = `תודה! האם תוכל לשלוח עד 3 תמונות של הבעיה? אם אין תמונות, כתוב "אין".`

	msgIntakeDone = `תודה רבה! קיבלתי את כל הפרטים. בעל העסק יחזור אליך בהקדם עם הצעת מחיר.`

	msgPhotoReceived = `התמונה התקבלה! אפשר לשלוח עוד, או לכתוב "אין" כדי לסיים.`

	msgBadAppointmentChoice = `הבחירה לא תקינה. אנא השב עם מספר האפשרות מהרשימה.`

	msgInquiryRelationQuestion = `ראיתי שיש לך פנייה פתוחה אצלנו. האם ההודעה קשורה לפנייה הקיימת?
1. כן, קשורה לפנייה
2. קשורה להצעת המחיר
3. לא, זה משהו אחר`
)

// Owner-facing texts.
const (
	msgOwnerNoPendingLead = `אין כרגע פנייה ממתינה לטיפול. שלח מספר פנייה (4 ספרות) כדי לבחור פנייה.`

	msgOwnerHelpLead = `פנייה ממתינה לטיפול. אפשרויות:
1. הכן הצעת מחיר
2. קבע פגישה
3. פרטי התקשרות ללקוח
4. קישור לצ'אט עם הלקוח`

	msgOwnerHelpQuote = `יש הצעת מחיר פעילה. שלח "אישור" לשליחתה ללקוח, "עריכה" לבחירת מוצרים מחדש או "ביטול" לביטולה.`

	msgQuoteEditMenu = `מה תרצה לעשות?
1. שינוי כמות
2. שינוי מחיר
3. אישור ושליחה ללקוח
4. ביטול ההצעה
5. אישור ושליחה
6. הצגת פניות ממתינות
7. עזרה`

	msgQuoteApprovedPrecondition = `כדי לקבוע פגישה צריך הצעת מחיר מאושרת על ידי הלקוח. ההצעה עדיין לא אושרה.`

	msgNoApprovedLead = `לא נמצאה פנייה עם הצעת מחיר מאושרת לקביעת פגישה.`

	msgPickQuantityItem = `לאיזה פריט לשנות כמות? שלח את מספר הפריט.`

	msgPickPriceItem = `לאיזה פריט לשנות מחיר? שלח את מספר הפריט.`

	msgAskNewQuantity = `מה הכמות החדשה?`

	msgAskNewPrice = `מה המחיר החדש ליחידה?`

	msgBadItemIndex = `מספר פריט לא תקין. שלח מספר מהרשימה.`

	msgBadPositiveNumber = `צריך מספר חיובי. נסה שוב.`

	msgNoProducts = `לא הוגדרו מוצרים פעילים לעסק. הוסף מוצרים בקטלוג ונסה שוב.`

	msgBadProductSelection = `הבחירה לא תקינה. שלח מספרי מוצרים מופרדים בפסיק, למשל: 1,3`

	msgQuoteCancelled = `ההצעה בוטלה.`

	msgSelectDays = `באילו ימים תרצה להציע פגישה? שלח עד 3 מספרים מופרדים בפסיק.`

	msgNoAvailableDays = `לא נמצאו ימים פנויים בשבוע הקרוב לפי שעות הפעילות שהוגדרו.`

	msgBadDaySelection = `בחירת ימים לא תקינה. שלח עד 3 מספרים מהרשימה, מופרדים בפסיק.`

	msgBadTimeSelection = `בחירה לא תקינה. שלח מספרי שעות מהרשימה, או 0 לדילוג על היום הזה.`

	msgNoSlotsChosen = `לא נבחרו שעות. קביעת הפגישה בוטלה.`
)

// renderWelcome fills the business's response template, falling back to the
// stock greeting when no template is configured.
func renderWelcome(b *models.Business) string {
	if b.ResponseTemplate != "" {
		r := strings.NewReplacer(
			"{owner_name}", b.OwnerName,
			"{business_name}", b.Name,
			"{service_type}", orDefault(b.ServiceType, "שירותי תחזוקה"),
			"{service_area}", orDefault(b.ServiceArea, "המרכז"),
		)
		return r.Replace(b.ResponseTemplate)
	}

	about := b.ServiceDescription
	if about == "" {
		about = "אנחנו כאן לעזור לך!"
	}
	return fmt.Sprintf(`שלום! אני %s מ-%s 👋

%s

קיבלתי את הפנייה שלך!
האם תוכל לשלוח תמונה של הבעיה כדי שאוכל להכין הצעת מחיר?`, b.OwnerName, b.Name, about)
}

// renderOwnerLeadMenu presents a lead to the owner with the numeric action
// menu, listing catalog products whose keywords match the description.
func renderOwnerLeadMenu(lead *models.Lead, customer *models.Customer, suggested []models.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "פנייה #%d\n", lead.DisplayNumber)
	fmt.Fprintf(&b, "לקוח: %s (%s)\n", customer.Name, customer.Phone)
	if customer.FullAddress != "" {
		fmt.Fprintf(&b, "כתובת: %s\n", customer.FullAddress)
	}
	if lead.ServiceDescription != "" {
		fmt.Fprintf(&b, "תיאור: %s\n", lead.ServiceDescription)
	}
	if len(suggested) > 0 {
		b.WriteString("\nמוצרים מתאימים:\n")
		for _, p := range suggested {
			fmt.Fprintf(&b, "• %s - ₪%.0f\n", p.Name, p.BasePrice)
		}
	}
	b.WriteString(`
מה תרצה לעשות?
1. הכן הצעת מחיר
2. קבע פגישה
3. פרטי התקשרות ללקוח
4. קישור לצ'אט עם הלקוח`)
	return b.String()
}

// renderProductList shows the catalog for quote selection.
func renderProductList(products []models.Product) string {
	var b strings.Builder
	b.WriteString("בחר מוצרים להצעת המחיר (מספרים מופרדים בפסיק):\n\n")
	for i, p := range products {
		fmt.Fprintf(&b, "%d. %s - ₪%.0f\n", i+1, p.Name, p.BasePrice)
	}
	return b.String()
}

// renderAppointmentOptions shows offered slots to the customer.
func renderAppointmentOptions(opts []state.AppointmentOption) string {
	var b strings.Builder
	b.WriteString("אפשרויות לפגישה:\n\n")
	for _, o := range opts {
		fmt.Fprintf(&b, "%d. %s בשעה %s\n", o.Index, o.Date, o.Time)
	}
	b.WriteString("\nהשב עם מספר האפשרות המתאימה לך.")
	return b.String()
}

// renderDayMenu shows the owner the candidate days for scheduling.
func renderDayMenu(lead *models.Lead, days []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "קביעת פגישה לפנייה #%d\n\n", lead.DisplayNumber)
	for i, d := range days {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d)
	}
	b.WriteString("\n" + msgSelectDays)
	return b.String()
}

// renderTimeMenu shows the owner a day's open slots.
func renderTimeMenu(day state.SessionDay) string {
	var b strings.Builder
	fmt.Fprintf(&b, "שעות פנויות ב-%s:\n\n", day.Date)
	for i, s := range day.Slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Time)
	}
	b.WriteString("\nשלח מספרי שעות מופרדים בפסיק, או 0 לדילוג.")
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
