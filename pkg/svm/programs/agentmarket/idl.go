package agentmarket

import (
	"encoding/json"
	"fmt"
)

// IDL describes the program's interface in the JSON shape Anchor clients
// consume: instructions with discriminators and account flags, the Agent
// account layout and the error table.
type IDL struct {
	Version      string              `json:"version"`
	Name         string              `json:"name"`
	Address      string              `json:"address"`
	Instructions []IDLInstruction    `json:"instructions"`
	Accounts     []IDLTypeDefinition `json:"accounts"`
	Errors       []IDLError          `json:"errors"`
}

// IDLInstruction describes one instruction.
type IDLInstruction struct {
	Name          string       `json:"name"`
	Discriminator []int        `json:"discriminator"`
	Accounts      []IDLAccount `json:"accounts"`
	Args          []IDLField   `json:"args"`
}

// IDLAccount describes an account an instruction takes.
type IDLAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// IDLField is a named, typed value.
type IDLField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IDLTypeDefinition describes an account type.
type IDLTypeDefinition struct {
	Name          string  `json:"name"`
	Discriminator []int   `json:"discriminator"`
	Type          IDLType `json:"type"`
}

// IDLType is a struct layout.
type IDLType struct {
	Kind   string     `json:"kind"`
	Fields []IDLField `json:"fields"`
}

// IDLError is one entry of the error table.
type IDLError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

const idlVersion = "0.1.0"

func discriminatorInts(d Discriminator) []int {
	out := make([]int, len(d))
	for i, b := range d {
		out[i] = int(b)
	}
	return out
}

// IDL returns the interface description for this program instance.
func (p *Program) IDL() *IDL {
	stringArgs := []IDLField{
		{Name: "name", Type: "string"},
		{Name: "description", Type: "string"},
		{Name: "endpoint", Type: "string"},
		{Name: "price", Type: "u64"},
	}
	idl := &IDL{
		Version: idlVersion,
		Name:    "aiagentmarket",
		Address: p.cfg.ProgramID.String(),
		Instructions: []IDLInstruction{
			{
				Name:          (*RegisterAgent)(nil).Name(),
				Discriminator: discriminatorInts(RegisterAgentDiscriminator),
				Accounts: []IDLAccount{
					{Name: "agent", IsMut: true, IsSigner: true},
					{Name: "user", IsMut: true, IsSigner: true},
					{Name: "systemProgram"},
				},
				Args: stringArgs,
			},
			{
				Name:          (*InvokeAgent)(nil).Name(),
				Discriminator: discriminatorInts(InvokeAgentDiscriminator),
				Accounts: []IDLAccount{
					{Name: "agent", IsMut: true},
					{Name: "user", IsMut: true, IsSigner: true},
					{Name: "agentOwner", IsMut: true},
					{Name: "systemProgram"},
				},
				Args: []IDLField{},
			},
		},
		Accounts: []IDLTypeDefinition{{
			Name:          "Agent",
			Discriminator: discriminatorInts(AgentAccountDiscriminator),
			Type: IDLType{
				Kind: "struct",
				Fields: append(append([]IDLField{}, stringArgs...),
					IDLField{Name: "owner", Type: "publicKey"}),
			},
		}},
	}
	for _, e := range ProgramErrors() {
		idl.Errors = append(idl.Errors, IDLError{Code: e.Code, Name: e.Name, Msg: e.Msg})
	}
	return idl
}

// MarshalIDL returns the indented JSON form of the IDL.
func (p *Program) MarshalIDL() ([]byte, error) {
	return json.MarshalIndent(p.IDL(), "", "  ")
}

// ParseIDL decodes an IDL document.
func ParseIDL(raw []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(raw, &idl); err != nil {
		return nil, fmt.Errorf("error unmarshalling IDL JSON: %w", err)
	}
	return &idl, nil
}
