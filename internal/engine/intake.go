package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/whatscrm/server/internal/classify"
	"github.com/whatscrm/server/internal/greenapi"
	"github.com/whatscrm/server/internal/models"
	"github.com/whatscrm/server/internal/state"
)

// selfIntroPatterns recognize an explicit self-introduction anywhere in a
// message; a match overrides the stored name regardless of current state.
var selfIntroPatterns = []*regexp.Regexp{
	regexp.MustCompile(`קוראים לי\s+(.+)`),
	regexp.MustCompile(`^שמי\s+(.+)`),
	regexp.MustCompile(`^אני\s+(\S+(?:\s+\S+)?)\s*$`),
	regexp.MustCompile(`(?i)my name is\s+(.+)`),
	regexp.MustCompile(`(?i)^i am\s+(\S+(?:\s+\S+)?)\s*$`),
}

var affirmativeReplies = map[string]bool{
	"כן":      true,
	"נכון":    true,
	"בטח":     true,
	"אישור":   true,
	"מאשר":    true,
	"מאשרת":   true,
	"yes":     true,
	"y":       true,
	"ok":      true,
	"correct": true,
}

var noMorePhotosReplies = map[string]bool{
	"לא":   true,
	"אין":  true,
	"די":   true,
	"no":   true,
	"none": true,
	"done": true,
}

// handleCustomer runs the customer priority chain: every inbound customer
// message is evaluated against these checks in order, first match wins.
func (e *Engine) handleCustomer(ctx context.Context, business *models.Business, sender string, in greenapi.Inbound) (string, error) {
	listed, err := e.store.IsWhitelisted(ctx, business.ID, sender)
	if err != nil {
		return "", err
	}

	customer, created, err := e.store.GetOrCreateCustomer(ctx, business.ID, sender)
	if err != nil {
		return "", err
	}

	if listed {
		// store only, never auto-reply
		if lead, err := e.store.FindOpenLead(ctx, customer.ID, e.cfg.LeadValidity); err == nil {
			if err := e.store.AppendLeadDescription(ctx, lead.ID, in.Text); err != nil {
				e.logger.Error("append whitelisted message failed", "lead_id", lead.ID, "error", err)
			}
		}
		e.cfg.Metrics.ObserveOutbound("suppressed", true)
		return "OK - whitelisted", nil
	}

	st, err := state.DecodeCustomer(customer.Notes)
	if err != nil {
		e.logger.Error("malformed customer state", "customer_id", customer.ID, "error", err)
		st = state.CustomerState{}
	}

	if name, ok := matchSelfIntro(in.Text); ok {
		if err := e.store.UpdateCustomerName(ctx, customer.ID, name); err != nil {
			return "", err
		}
		customer.Name = name
	}

	switch {
	case st.Kind == state.WaitingForAppointmentChoice:
		return e.handleAppointmentChoice(ctx, business, customer, st, in.Text)

	case st.Kind == state.GeneralCorrespondence:
		if !st.Expired(e.now(), e.cfg.CorrespondenceTTL) {
			if isSingleDigit(in.Text) {
				resume := st
				resume.Kind = state.WaitingForAppointmentChoice
				return e.handleAppointmentChoice(ctx, business, customer, resume, in.Text)
			}
			return "OK - correspondence", nil
		}
		if err := e.saveCustomerState(ctx, customer, state.CustomerState{}); err != nil {
			return "", err
		}
		st = state.CustomerState{}

	case st.Kind == state.WaitingForInquiryRelation:
		return e.handleInquiryRelation(ctx, business, customer, st, in.Text)
	}

	// returning customer with an inquiry already on the owner's desk: ask
	// what this message relates to before touching any state
	if st.Idle() && !created && strings.TrimSpace(in.Text) != "" && !in.HasMedia() {
		if lead, err := e.store.FindRecentLeadForCustomerWithTag(ctx, customer.ID,
			string(state.WaitingForOwnerAction), e.cfg.LeadValidity); err == nil {
			ask := state.CustomerState{
				Kind:    state.WaitingForInquiryRelation,
				LeadID:  lead.ID,
				Message: in.Text,
			}
			if err := e.saveCustomerState(ctx, customer, ask); err != nil {
				return "", err
			}
			e.send(ctx, business, customer.Phone, msgInquiryRelationQuestion)
			return "OK", nil
		}
	}

	return e.runIntake(ctx, business, customer, st, in)
}

// runIntake advances the customer intake state machine.
func (e *Engine) runIntake(ctx context.Context, business *models.Business, customer *models.Customer, st state.CustomerState, in greenapi.Inbound) (string, error) {
	text := strings.TrimSpace(in.Text)

	switch st.Kind {
	case state.WaitingForName:
		if text == "" {
			return "OK", nil
		}
		name := text
		if intro, ok := matchSelfIntro(text); ok {
			name = intro
		}
		if err := e.store.UpdateCustomerName(ctx, customer.ID, name); err != nil {
			return "", err
		}
		customer.Name = name
		return e.afterName(ctx, business, customer, st)

	case state.WaitingForAddressConfirmation:
		if affirmativeReplies[strings.ToLower(text)] {
			next := state.CustomerState{Kind: state.WaitingForDescription, LeadID: st.LeadID}
			if err := e.saveCustomerState(ctx, customer, next); err != nil {
				return "", err
			}
			e.send(ctx, business, customer.Phone, msgAskDescription)
			return "OK", nil
		}
		if len([]rune(text)) > 5 {
			city := extractCity(text)
			if err := e.store.UpdateCustomerAddress(ctx, customer.ID, text, city, text); err != nil {
				return "", err
			}
			if err := e.saveCustomerState(ctx, customer, state.CustomerState{}); err != nil {
				return "", err
			}
			e.send(ctx, business, customer.Phone, msgAskDescription)
			return "OK", nil
		}
		e.send(ctx, business, customer.Phone, "האם הכתובת שלך עדיין "+customer.FullAddress+"? (כן / כתובת חדשה)")
		return "OK", nil

	case state.WaitingForDescription:
		if text == "" {
			return "OK", nil
		}
		if st.LeadID != uuid.Nil {
			if err := e.store.AppendLeadDescription(ctx, st.LeadID, text); err != nil {
				return "", err
			}
		}
		if customer.Address != "" {
			next := state.CustomerState{Kind: state.WaitingForPhotos, LeadID: st.LeadID, PhotoCount: 0}
			if err := e.saveCustomerState(ctx, customer, next); err != nil {
				return "", err
			}
			e.send(ctx, business, customer.Phone, msgAskPhotos)
			return "OK", nil
		}
		next := state.CustomerState{Kind: state.WaitingForAddress, LeadID: st.LeadID}
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		e.send(ctx, business, customer.Phone, msgAskAddress)
		return "OK", nil

	case state.WaitingForAddress:
		if text == "" {
			return "OK", nil
		}
		city := extractCity(text)
		if err := e.store.UpdateCustomerAddress(ctx, customer.ID, text, city, text); err != nil {
			return "", err
		}
		customer.Address = text
		customer.City = city
		customer.FullAddress = text
		next := state.CustomerState{Kind: state.WaitingForPhotos, LeadID: st.LeadID, PhotoCount: 0}
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		e.send(ctx, business, customer.Phone, msgAskPhotos)
		return "OK", nil

	case state.WaitingForPhotos:
		return e.handlePhotoStep(ctx, business, customer, st, in)
	}

	// idle: a fresh message either reopens/extends an inquiry or is dropped
	return e.handleNewMessage(ctx, business, customer, in)
}

// handleNewMessage gates new conversations on the classifier and opens the
// intake flow for business inquiries. Non-inquiries are dropped without a
// reply on purpose: a wrong auto-reply in a private chat is worse than
// missing a lead.
func (e *Engine) handleNewMessage(ctx context.Context, business *models.Business, customer *models.Customer, in greenapi.Inbound) (string, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && !in.HasMedia() {
		return "OK - empty", nil
	}

	lead, err := e.store.FindOpenLead(ctx, customer.ID, e.cfg.LeadValidity)
	if err == nil {
		// existing open inquiry: accumulate and stay quiet
		if text != "" {
			if err := e.store.AppendLeadDescription(ctx, lead.ID, text); err != nil {
				return "", err
			}
		}
		if in.HasMedia() && e.archiver != nil {
			if _, err := e.archiver.Archive(ctx, lead.ID, in.MediaType, in.MediaURL, in.Caption); err != nil {
				e.logger.Error("archive media failed", "lead_id", lead.ID, "error", err)
			}
		}
		return "OK", nil
	} else if !isNotFound(err) {
		return "", err
	}

	verdict, err := e.classifier.Classify(ctx, classify.Input{
		Text: text,
		Known: classify.KnownFields{
			Name:    nameOnFile(customer),
			Address: customer.Address,
			City:    customer.City,
		},
	})
	if err != nil {
		e.logger.Error("classification failed", "customer_id", customer.ID, "error", err)
		return "OK - classifier error", nil
	}
	if !verdict.IsBusinessInquiry {
		return "OK - ignored", nil
	}

	lead, err = e.store.CreateLead(ctx, business.ID, customer.ID, text)
	if err != nil {
		return "", err
	}

	e.send(ctx, business, customer.Phone, renderWelcome(business))

	if in.HasMedia() && e.archiver != nil {
		if _, err := e.archiver.Archive(ctx, lead.ID, in.MediaType, in.MediaURL, in.Caption); err != nil {
			e.logger.Error("archive media failed", "lead_id", lead.ID, "error", err)
		}
	}

	if !customer.HasName() {
		next := state.CustomerState{Kind: state.WaitingForName, LeadID: lead.ID}
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		e.send(ctx, business, customer.Phone, msgAskName)
		return "OK", nil
	}
	return e.afterName(ctx, business, customer, state.CustomerState{LeadID: lead.ID})
}

// afterName decides the step following a known name: returning customers with
// an address on file confirm it instead of re-entering.
func (e *Engine) afterName(ctx context.Context, business *models.Business, customer *models.Customer, st state.CustomerState) (string, error) {
	if customer.Address != "" {
		next := state.CustomerState{Kind: state.WaitingForAddressConfirmation, LeadID: st.LeadID}
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		e.send(ctx, business, customer.Phone, "האם הכתובת שלך עדיין "+customer.FullAddress+"? (כן / כתובת חדשה)")
		return "OK", nil
	}
	next := state.CustomerState{Kind: state.WaitingForDescription, LeadID: st.LeadID}
	if err := e.saveCustomerState(ctx, customer, next); err != nil {
		return "", err
	}
	e.send(ctx, business, customer.Phone, msgAskDescription)
	return "OK", nil
}

// handlePhotoStep counts media up to the intake limit; "no"/"none" after at
// least one photo finishes early.
func (e *Engine) handlePhotoStep(ctx context.Context, business *models.Business, customer *models.Customer, st state.CustomerState, in greenapi.Inbound) (string, error) {
	text := strings.ToLower(strings.TrimSpace(in.Text))

	if in.HasMedia() {
		if e.archiver != nil {
			if _, err := e.archiver.Archive(ctx, st.LeadID, in.MediaType, in.MediaURL, in.Caption); err != nil {
				e.logger.Error("archive media failed", "lead_id", st.LeadID, "error", err)
			}
		}
		count := st.PhotoCount + 1
		// the archive count is authoritative when it runs ahead of the state
		// tag, e.g. after a redelivered webhook
		if archived, err := e.store.CountLeadMedia(ctx, st.LeadID); err == nil && archived > count {
			count = archived
		}
		if count >= e.cfg.MaxIntakePhotos {
			return e.finalizeIntake(ctx, business, customer, st.LeadID)
		}
		next := st
		next.PhotoCount = count
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		e.send(ctx, business, customer.Phone, msgPhotoReceived)
		return "OK", nil
	}

	if noMorePhotosReplies[text] {
		return e.finalizeIntake(ctx, business, customer, st.LeadID)
	}

	// free text during the photo step still belongs to the inquiry
	if text != "" && st.LeadID != uuid.Nil {
		if err := e.store.AppendLeadDescription(ctx, st.LeadID, in.Text); err != nil {
			return "", err
		}
	}
	return "OK", nil
}

// finalizeIntake closes the customer side of the flow and hands the lead to
// the owner with the action menu.
func (e *Engine) finalizeIntake(ctx context.Context, business *models.Business, customer *models.Customer, leadID uuid.UUID) (string, error) {
	lead, err := e.store.GetLeadByID(ctx, leadID)
	if err != nil {
		return "", err
	}

	if err := e.saveLeadState(ctx, lead, state.LeadState{Kind: state.WaitingForOwnerAction}); err != nil {
		return "", err
	}
	if err := e.saveCustomerState(ctx, customer, state.CustomerState{}); err != nil {
		return "", err
	}

	e.send(ctx, business, customer.Phone, msgIntakeDone)
	if business.OwnerPhone != "" {
		e.send(ctx, business, business.OwnerPhone, renderOwnerLeadMenu(lead, customer, e.suggestProducts(ctx, lead)))
	}
	return "OK", nil
}

// handleInquiryRelation processes the customer's answer to the
// "does this relate to your open inquiry" question.
func (e *Engine) handleInquiryRelation(ctx context.Context, business *models.Business, customer *models.Customer, st state.CustomerState, text string) (string, error) {
	choice := strings.TrimSpace(text)

	switch choice {
	case "1", "2":
		if st.Message != "" {
			if err := e.store.AppendLeadDescription(ctx, st.LeadID, st.Message); err != nil {
				return "", err
			}
		}
		lead, err := e.store.GetLeadByID(ctx, st.LeadID)
		if err != nil {
			return "", err
		}
		if business.OwnerPhone != "" {
			e.send(ctx, business, business.OwnerPhone,
				"הודעה חדשה מ-"+customer.Name+" לגבי פנייה #"+strconv.Itoa(lead.DisplayNumber)+":\n"+st.Message)
		}
		next := state.CustomerState{
			Kind:   state.GeneralCorrespondence,
			LeadID: st.LeadID,
			Since:  e.now().UTC(),
		}
		if err := e.saveCustomerState(ctx, customer, next); err != nil {
			return "", err
		}
		return "OK", nil
	}

	// unrelated: clear the marker and treat the preserved original message
	// as a fresh conversation opener
	if err := e.saveCustomerState(ctx, customer, state.CustomerState{}); err != nil {
		return "", err
	}
	return e.handleNewMessage(ctx, business, customer, greenapi.Inbound{Text: text})
}

func matchSelfIntro(text string) (string, bool) {
	for _, p := range selfIntroPatterns {
		if m := p.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" && len([]rune(name)) <= 40 {
				return name, true
			}
		}
	}
	return "", false
}

func nameOnFile(c *models.Customer) string {
	if c.HasName() {
		return c.Name
	}
	return ""
}

func isSingleDigit(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) == 1 && s[0] >= '0' && s[0] <= '9'
}
