package vault

import "encoding/json"

// Record is a vault record as printed by the CLI's JSON output. Fields the
// client does not model are kept in Raw.
type Record struct {
	UID         string  `json:"record_uid"`
	Title       string  `json:"title"`
	Type        string  `json:"type,omitempty"`
	Description string  `json:"description,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Custom      []Field `json:"custom,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Field is one typed record field. Value is left raw because its shape
// depends on Type.
type Field struct {
	Type  string          `json:"type"`
	Label string          `json:"label,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Strings decodes the field value as a list of strings. Non-string values
// yield nil.
func (f Field) Strings() []string {
	var out []string
	if err := json.Unmarshal(f.Value, &out); err == nil {
		return out
	}
	var single string
	if err := json.Unmarshal(f.Value, &single); err == nil {
		return []string{single}
	}
	return nil
}

// Field returns the first field of the given type, checking standard fields
// before custom ones.
func (r Record) Field(fieldType string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Type == fieldType {
			return f, true
		}
	}
	for _, f := range r.Custom {
		if f.Type == fieldType {
			return f, true
		}
	}
	return Field{}, false
}

// Folder is a vault folder.
type Folder struct {
	UID  string `json:"folder_uid"`
	Name string `json:"name"`
}

// NewRecord describes a record to create with AddRecord.
type NewRecord struct {
	Title    string
	Type     string // Default: "login"
	Login    string
	Password string
	URL      string
	Notes    string
	Folder   string // Folder UID or path
}

// generated is one entry of the password generator's JSON output.
type generated struct {
	Password string `json:"password"`
}
