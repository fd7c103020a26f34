package domain

// Intent is a fixed category describing what the sender wants.
type Intent string

const (
	IntentBusinessHours  Intent = "business_hours"
	IntentMenuInquiry    Intent = "menu_inquiry"
	IntentReservation    Intent = "reservation"
	IntentComplaint      Intent = "complaint"
	IntentLocation       Intent = "location"
	IntentDelivery       Intent = "delivery"
	IntentContact        Intent = "contact"
	IntentPricing        Intent = "pricing"
	IntentAvailability   Intent = "availability"
	IntentThanks         Intent = "thanks"
	IntentGeneralInquiry Intent = "general_inquiry"
)

// Language is the detected or supplied message language.
type Language string

const (
	LanguageChinese Language = "zh"
	LanguageEnglish Language = "en"
)

// Confidence bounds of the keyword classifier.
const (
	MinConfidence = 0.3
	MaxConfidence = 0.9
)

// ClassificationResult is the fixed-shape output of the intent classifier.
type ClassificationResult struct {
	Intent         Intent   `json:"intent"`
	Confidence     float64  `json:"confidence"`
	Language       Language `json:"language"`
	MatchedIntents []Intent `json:"matched_intents"`
}
