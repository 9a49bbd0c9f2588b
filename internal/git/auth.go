package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	appcfg "git.home.luguber.info/inful/docship/internal/config"
)

// buildAuth converts an AuthConfig into a go-git transport auth method.
// Returns nil for absent/none configurations.
func buildAuth(authCfg *appcfg.AuthConfig) (transport.AuthMethod, error) {
	if authCfg == nil {
		return nil, nil
	}
	switch authCfg.Type {
	case "", appcfg.AuthTypeNone:
		return nil, nil
	case appcfg.AuthTypeToken:
		if authCfg.Token == "" {
			return nil, fmt.Errorf("token auth requires a token")
		}
		// Forges accept tokens over HTTP basic with any username.
		return &githttp.BasicAuth{Username: "docship", Password: authCfg.Token}, nil
	case appcfg.AuthTypeBasic:
		if authCfg.Username == "" || authCfg.Password == "" {
			return nil, fmt.Errorf("basic auth requires username and password")
		}
		return &githttp.BasicAuth{Username: authCfg.Username, Password: authCfg.Password}, nil
	case appcfg.AuthTypeSSH:
		if authCfg.KeyPath == "" {
			return nil, fmt.Errorf("ssh auth requires key_path")
		}
		user := authCfg.Username
		if user == "" {
			user = "git"
		}
		keys, err := gitssh.NewPublicKeysFromFile(user, authCfg.KeyPath, authCfg.Password)
		if err != nil {
			return nil, fmt.Errorf("load ssh key %s: %w", authCfg.KeyPath, err)
		}
		return keys, nil
	default:
		return nil, fmt.Errorf("unsupported auth type: %s", authCfg.Type)
	}
}
