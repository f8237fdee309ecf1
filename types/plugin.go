package types

// Plugin is an immutable catalog entry describing an installable plugin. The
// relay never executes plugins, it only hands their descriptors to clients.
type Plugin struct {
	Id          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Version     string `json:"version" mapstructure:"version"`
	Description string `json:"description" mapstructure:"description"`
	Url         string `json:"url" mapstructure:"url"`
}
