package resolver

// Kind is a resource type that can be looked up by name.
type Kind int

const (
	KindCollection Kind = iota + 1
	KindDevice
	KindScript
)

type kindInfo struct {
	name      string
	class     string
	nameField string
	idField   string
	numericID bool
}

var kinds = map[Kind]kindInfo{
	KindCollection: {name: "collection", class: "SMS_Collection", nameField: "Name", idField: "CollectionID"},
	KindDevice:     {name: "device", class: "SMS_R_System", nameField: "Name", idField: "ResourceId", numericID: true},
	KindScript:     {name: "script", class: "SMS_Scripts", nameField: "ScriptName", idField: "ScriptGuid"},
}

func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return "unknown"
}

// Class is the WMI class holding resources of this kind.
func (k Kind) Class() string { return kinds[k].class }

// NameField is the property matched by name references.
func (k Kind) NameField() string { return kinds[k].nameField }

// IDField is the key property.
func (k Kind) IDField() string { return kinds[k].idField }

// NumericID reports whether the key is an integer (devices).
func (k Kind) NumericID() bool { return kinds[k].numericID }
