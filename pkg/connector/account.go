// Copyright 2024-2026 Aiku AI

package connector

import (
	"fmt"
)

// accountSchemaVersion is the current AccountConfig schema. Loaded records
// with older versions are migrated forward by upgrade.
const accountSchemaVersion = 1

// AccountConfig is the persisted record for one bridged remote-network
// login: the login identifier, the credential pair and the opaque
// resumable session blob.
type AccountConfig struct {
	ID       string `yaml:"id" json:"id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	// Owner is the home-network identity this account belongs to. Opaque
	// to the relay; the home framework interprets it.
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	// Session is the remote client's opaque resumable state. Refreshed
	// after every successful connect.
	Session []byte `yaml:"session,omitempty" json:"session,omitempty"`
	// LegacyToken is the pre-v1 inline session token. Migrated into
	// Session on load and never written back.
	LegacyToken   string `yaml:"token,omitempty" json:"token,omitempty"`
	SchemaVersion int    `yaml:"schema_version" json:"schema_version"`
}

// upgrade migrates an account record to the current schema version.
func (a *AccountConfig) upgrade() error {
	switch a.SchemaVersion {
	case 0:
		if a.LegacyToken != "" && len(a.Session) == 0 {
			a.Session = []byte(a.LegacyToken)
		}
		a.LegacyToken = ""
		a.SchemaVersion = accountSchemaVersion
	case accountSchemaVersion:
	default:
		return fmt.Errorf("account %s has unsupported schema version %d", a.ID, a.SchemaVersion)
	}
	if a.ID == "" {
		return fmt.Errorf("account record is missing an id")
	}
	if a.Username == "" {
		return fmt.Errorf("account %s is missing a username", a.ID)
	}
	return nil
}
