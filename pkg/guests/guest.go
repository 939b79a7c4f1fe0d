package guests

import "strings"

// DefaultDataset is the Hugging Face dataset holding the gala invitees.
const DefaultDataset = "agents-course/unit3-invitees"

// Guest is one invitee record.
type Guest struct {
	Name        string `json:"name" yaml:"name"`
	Relation    string `json:"relation" yaml:"relation"`
	Description string `json:"description" yaml:"description"`
	Email       string `json:"email" yaml:"email"`
}

// Document renders the guest as the text handed to the model and indexed for retrieval.
func (g Guest) Document() string {
	return strings.Join([]string{
		"Name: " + g.Name,
		"Relation: " + g.Relation,
		"Description: " + g.Description,
		"Email: " + g.Email,
	}, "\n")
}
