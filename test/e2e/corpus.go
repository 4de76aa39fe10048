// Package e2e provides end-to-end tests with a scenario catalog and multiple queries.
package e2e

import (
	"fmt"
	"strings"

	"github.com/hyperjump/suggest/internal/models"
)

// CorpusScenario is a scenario entry in the E2E catalog.
type CorpusScenario struct {
	Key         string
	Title       string
	Description string
}

// QueryTestCase defines a query and the scenario key that must appear in the suggestions.
type QueryTestCase struct {
	Query       string
	ExpectedKey string
	Description string
}

// Corpus holds scenarios and query test cases for E2E tests.
type Corpus struct {
	Scenarios      []CorpusScenario
	TestCases      []QueryTestCase
	TotalScenarios int
	TotalQueries   int
}

// features pairs a signature phrase with the description used for its scenario. Each phrase
// uses words that no other phrase uses, so a query for the phrase has exactly one best match.
var features = []struct {
	phrase      string
	description string
}{
	{"login with valid password", "A registered user signs in with the correct credentials."},
	{"reset forgotten passcode via email", "The reset link arrives and sets a new passcode."},
	{"logout clears browser cookie", "Signing out removes the session cookie."},
	{"upload profile avatar image", "A PNG avatar is accepted and displayed."},
	{"export monthly invoice pdf", "Billing exports the monthly invoice as PDF."},
	{"checkout applies discount coupon", "A valid coupon reduces the cart total."},
	{"cart removes sold out item", "Items that sell out are removed from the cart."},
	{"search filters products by brand", "Brand filter narrows the product list."},
	{"admin disables inactive accounts", "Accounts idle for a year are disabled."},
	{"two factor code expires", "Expired second factor codes are rejected."},
	{"notification preferences toggle sms", "SMS notifications can be switched off."},
	{"dark theme persists after reload", "The chosen theme survives a page reload."},
	{"calendar shows timezone offset", "Events render in the viewer's timezone."},
	{"webhook retries failed delivery", "Failed webhook deliveries are retried with backoff."},
	{"csv import rejects malformed rows", "Rows with missing columns are reported."},
	{"api token rotation revokes old token", "Rotating a token invalidates the previous one."},
	{"shipping estimate rural postcode", "Rural postcodes get longer delivery estimates."},
	{"refund partial order amount", "Support refunds part of an order."},
	{"wishlist shares public link", "A wishlist can be shared through a public URL."},
	{"chat widget reconnects offline", "The chat widget reconnects after going offline."},
	{"report schedules weekly digest", "A weekly digest report is emailed on Mondays."},
	{"audit trail records permission change", "Permission changes appear in the audit trail."},
	{"gift card balance lookup", "Customers check the remaining gift card balance."},
	{"language switcher translates menu", "Switching language translates the navigation menu."},
	{"map pins nearby stores", "The store locator pins stores near the user."},
	{"subscription renewal charges stored visa", "Renewals charge the saved card automatically."},
	{"weak secret strength meter flags", "Weak passwords trigger a warning."},
	{"bulk delete archived projects", "Archived projects can be deleted in bulk."},
	{"video player resumes playback position", "Playback resumes where the viewer stopped."},
	{"keyboard shortcuts open command palette", "Ctrl K opens the command palette."},
	{"pagination keeps sorting direction", "Moving between pages keeps the chosen sort."},
	{"captcha blocks automated signup", "Automated signups are stopped by a captcha."},
	{"inventory sync from warehouse feed", "Stock levels update from the warehouse feed."},
	{"tax computed for eu vat", "EU VAT is computed from the billing country."},
	{"newsletter unsubscribe single click", "One click unsubscribes from the newsletter."},
	{"drag reorder kanban cards", "Kanban cards can be reordered by dragging."},
	{"receipt printer formats thermal paper", "Receipts fit 80mm thermal paper."},
	{"geofence alert triggers arrival", "Arrival inside a geofence sends an alert."},
	{"session timeout warns before expiry", "Users are warned before the session expires."},
	{"accessibility screen reader labels buttons", "Buttons expose labels to screen readers."},
}

// BuildCorpus returns a catalog of n scenarios and one query test case per distinct feature.
// Scenario titles repeat the feature phrase with a variant prefix once n exceeds the number of features.
func BuildCorpus(n int) *Corpus {
	scenarios := buildScenarios(n)
	cases := buildQueryTestCases(scenarios)
	return &Corpus{
		Scenarios:      scenarios,
		TestCases:      cases,
		TotalScenarios: len(scenarios),
		TotalQueries:   len(cases),
	}
}

func buildScenarios(n int) []CorpusScenario {
	out := make([]CorpusScenario, 0, n)
	for i := 0; i < n; i++ {
		f := features[i%len(features)]
		title := f.phrase
		if round := i / len(features); round > 0 {
			title = fmt.Sprintf("variant %d %s", round, f.phrase)
		}
		out = append(out, CorpusScenario{
			Key:         fmt.Sprintf("scenario-%03d", i+1),
			Title:       title,
			Description: f.description,
		})
	}
	return out
}

// buildQueryTestCases targets the first scenario of every feature with its exact phrase.
func buildQueryTestCases(scenarios []CorpusScenario) []QueryTestCase {
	var cases []QueryTestCase
	for i, s := range scenarios {
		if i >= len(features) {
			break
		}
		cases = append(cases, QueryTestCase{
			Query:       s.Title,
			ExpectedKey: s.Key,
			Description: fmt.Sprintf("query %q should suggest %s", s.Title, s.Key),
		})
	}
	return cases
}

func containsPhrase(s CorpusScenario, phrase string) bool {
	return strings.Contains(s.Title, phrase) || strings.Contains(s.Description, phrase)
}

// ToScenarioInputs converts the corpus scenarios to inputs for the create path.
func (c *Corpus) ToScenarioInputs() []*models.ScenarioInput {
	out := make([]*models.ScenarioInput, len(c.Scenarios))
	for i := range c.Scenarios {
		s := &c.Scenarios[i]
		out[i] = &models.ScenarioInput{Title: s.Title, Description: s.Description}
	}
	return out
}
