package ai

import (
	"fmt"
	"strings"
)

const analysisPromptTemplate = `Analyze this email conversation and extract sales opportunity information:

%s

Please provide a JSON response with the following structure:
{
    "is_sales_opportunity": true/false,
    "confidence": 0.0-1.0,
    "opportunity_type": "new_business|upsell|follow_up|inquiry|other",
    "estimated_value": 0,
    "currency": "DKK",
    "urgency": "high|medium|low",
    "next_action": "schedule_meeting|send_proposal|follow_up|no_action",
    "person_name": "extracted_full_name_from_emails",
    "organization_name": "recipient_organization_from_signature_or_domain",
    "offering_type": "security_solution|software|crm|consulting|web_design|other",
    "key_points": ["point1", "point2"]
}

Instructions:
1. Extract the recipient's full name from email addresses, signatures, or email content.
2. Extract the recipient's organization from the thread, signature, or the domain of the recipient's email address (e.g., lars.pedersen@grundfos.com -> Grundfos). Never use the sender's organization.
3. Determine the offering type from the conversation context.
4. Only respond with valid JSON. Use DKK as the default currency.`

const danishSummaryPromptTemplate = `Opsummer denne e-mail samtale på dansk i 2-3 sætninger, med fokus på vigtige forretningspunkter, krav og næste skridt:

%s

Opsummering:`

// EmailContext carries the parts of an email the prompts need.
type EmailContext struct {
	From    string
	To      string
	Subject string
	Body    string
}

func (e EmailContext) conversation() string {
	var b strings.Builder
	b.WriteString("Current Email:\n")
	fmt.Fprintf(&b, "From: %s\n", e.From)
	fmt.Fprintf(&b, "To: %s\n", e.To)
	fmt.Fprintf(&b, "Subject: %s\n", e.Subject)
	fmt.Fprintf(&b, "Content: %s\n", e.Body)
	return b.String()
}

func BuildAnalysisPrompt(email EmailContext) string {
	return fmt.Sprintf(analysisPromptTemplate, email.conversation())
}

func BuildDanishSummaryPrompt(email EmailContext) string {
	return fmt.Sprintf(danishSummaryPromptTemplate, email.conversation())
}
