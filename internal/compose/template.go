package compose

import (
	"fmt"
	"strings"

	"cardflow/internal/parse"
)

type templateParts struct {
	subject  string // fmt with company
	greeting string // fmt with company, name
	lead     string
	closing  string
}

// Canned lines per tone and language. The Japanese professional closing is
// the canonical one required by policy.
var templates = map[Language]map[Tone]templateParts{
	LangJA: {
		ToneProfessional: {
			subject:  "ご挨拶のお礼",
			greeting: "%s\n%s様",
			lead:     "先日は貴重なお時間をいただき、誠にありがとうございました。\nいただいたお名刺をもとにご連絡を差し上げております。",
			closing:  CanonicalClosingJA,
		},
		ToneFriendly: {
			subject:  "先日はありがとうございました",
			greeting: "%s\n%sさん",
			lead:     "先日はお話しできてうれしかったです。\nまたぜひ情報交換させてください。",
			closing:  "引き続きよろしくお願いします。",
		},
		ToneCasual: {
			subject:  "先日はどうも！",
			greeting: "%sの%sさん",
			lead:     "先日はありがとうございました！\nまた近いうちにお会いできるのを楽しみにしています。",
			closing:  "それでは、また！",
		},
	},
	LangEN: {
		ToneProfessional: {
			subject:  "Great connecting with you",
			greeting: "Dear %s of %s,",
			lead:     "Thank you for taking the time to meet. I am following up on the business card you kindly shared.",
			closing:  "I look forward to staying in touch.\n\nBest regards",
		},
		ToneFriendly: {
			subject:  "Nice meeting you!",
			greeting: "Hi %s,",
			lead:     "It was great meeting you the other day. I'd love to keep in touch and exchange ideas.",
			closing:  "Talk soon!",
		},
		ToneCasual: {
			subject:  "Good to meet you",
			greeting: "Hey %s,",
			lead:     "Great meeting you! Let's grab a coffee sometime.",
			closing:  "Cheers",
		},
	},
}

// RenderTemplate produces deterministic email content for rec. It never
// fails; missing names fall back to generic forms of address.
func RenderTemplate(rec parse.ContactRecord, opts Options) EmailContent {
	opts.normalize()
	parts := templates[opts.Language][opts.Tone]

	name := rec.Name
	company := rec.Company
	if opts.Language == LangJA {
		if name == "" {
			name = "ご担当者"
		}
		if company == "" {
			company = "貴社"
		}
	} else {
		if name == "" {
			name = "there"
		}
		if company == "" {
			company = "your company"
		}
	}

	var greeting string
	switch {
	case opts.Language == LangEN && opts.Tone == ToneProfessional:
		greeting = fmt.Sprintf(parts.greeting, name, company)
	case opts.Language == LangJA && opts.Tone == ToneCasual:
		greeting = fmt.Sprintf(parts.greeting, company, name)
	case opts.Language == LangJA:
		greeting = fmt.Sprintf(parts.greeting, company, name)
	default:
		greeting = fmt.Sprintf(parts.greeting, name)
	}

	lines := []string{greeting, "", parts.lead}
	if opts.CustomMessage != "" {
		lines = append(lines, "", opts.CustomMessage)
	}
	var sig string
	if opts.SenderName != "" {
		sig = opts.SenderName
		if opts.SenderCompany != "" {
			if opts.Language == LangJA {
				sig = opts.SenderCompany + " " + opts.SenderName
			} else {
				sig = opts.SenderName + ", " + opts.SenderCompany
			}
		}
	}
	// Japanese bodies must end on the closing sentence, so the signature
	// goes before it; English closings read naturally above the signature.
	if opts.Language == LangJA {
		if sig != "" {
			lines = append(lines, "", sig)
		}
		lines = append(lines, "", parts.closing)
	} else {
		lines = append(lines, "", parts.closing)
		if sig != "" {
			lines = append(lines, "", sig)
		}
	}

	return EmailContent{
		Subject:  parts.subject,
		Body:     strings.Join(lines, "\n"),
		Tone:     opts.Tone,
		Language: opts.Language,
	}
}
