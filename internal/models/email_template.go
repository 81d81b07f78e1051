package models

// EmailTemplate defines the structure for email templates stored in the DB.
type EmailTemplate struct {
	Base       `bson:",inline"`
	TemplateID string `bson:"templateId" json:"templateId"` // e.g., "inquiry_received", "inquiry_reply"
	Locale     string `bson:"locale" json:"locale"`         // e.g., "en", "ne"
	Subject    string `bson:"subject" json:"subject"`       // Subject template
	Body       string `bson:"body" json:"body"`             // Body template (text/template)
}

// Counter is a named atomic sequence.
type Counter struct {
	Name string `bson:"_id" json:"name"`
	Seq  int64  `bson:"seq" json:"seq"`
}
