package mockapi

import (
	"fmt"
	"strings"

	"github.com/jrsteele09/go-school-session/users"
)

// DefaultSeed is one account per dashboard role
const DefaultSeed = "admin:admin@school.test:Password1,teacher:teacher@school.test:Password1,parent:parent@school.test:Password1"

// Seed adds the accounts in a comma separated list of
// role:email:password entries. The part of the email before the @ becomes
// the display name.
func (s *Server) Seed(accounts string) ([]users.Profile, error) {
	var profiles []users.Profile
	for _, entry := range strings.Split(accounts, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("[mockapi Seed] invalid entry %q, want role:email:password", entry)
		}
		role, email, password := users.Role(parts[0]), parts[1], parts[2]
		name, _, _ := strings.Cut(email, "@")

		profile, err := s.AddAccount(name, email, password, role)
		if err != nil {
			return nil, fmt.Errorf("[mockapi Seed] %s: %w", email, err)
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}
