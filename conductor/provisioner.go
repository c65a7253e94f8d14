package conductor

import (
	"iotronic/store"
)

// Provisioner assembles the configuration payload delivered to a board at
// registration time (and the clean payload for self-teardown). The shape is
// the one boards consume on first boot: agent endpoints, board attributes,
// location.
type Provisioner struct {
	config map[string]any
}

// NewProvisioner seeds the payload from a board, or starts empty when the
// board is nil (clean configuration).
func NewProvisioner(board *store.Board) *Provisioner {
	p := &Provisioner{config: map[string]any{
		"iotronic": map[string]any{"extra": map[string]any{}},
	}}
	if board != nil {
		p.root()["board"] = map[string]any{
			"uuid":    board.UUID,
			"code":    board.Code,
			"name":    board.Name,
			"type":    board.Type,
			"owner":   board.Owner,
			"project": board.Project,
			"mobile":  board.Mobile,
			"extra":   board.Extra,
		}
	}
	return p
}

func (p *Provisioner) root() map[string]any {
	return p.config["iotronic"].(map[string]any)
}

func (p *Provisioner) wamp() map[string]any {
	root := p.root()
	w, ok := root["wamp"].(map[string]any)
	if !ok {
		w = map[string]any{}
		root["wamp"] = w
	}
	return w
}

// SetRegistrationAgent records the endpoint boards contact for onboarding.
func (p *Provisioner) SetRegistrationAgent(url, realm string) {
	p.wamp()["registration-agent"] = map[string]any{"url": url, "realm": realm}
}

// SetMainAgent records the endpoint the board is routed through after
// registration.
func (p *Provisioner) SetMainAgent(url, realm string) {
	p.wamp()["main-agent"] = map[string]any{"url": url, "realm": realm}
}

// SetLocation attaches the board's geo coordinates.
func (p *Provisioner) SetLocation(loc *store.Location) {
	board, ok := p.root()["board"].(map[string]any)
	if !ok {
		board = map[string]any{}
		p.root()["board"] = board
	}
	board["location"] = loc.Geo()
}

// Clean resets the payload to the factory shape a board applies when told to
// tear itself down: a placeholder token and empty agent endpoints.
func (p *Provisioner) Clean() {
	p.SetRegistrationAgent("", "")
	p.root()["board"] = map[string]any{"token": "<REGISTRATION-TOKEN>"}
}

// Config returns the assembled payload.
func (p *Provisioner) Config() map[string]any {
	return p.config
}
