package main

import (
	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/users"
	zlog "github.com/rs/zerolog/log"
)

// demoAccount is a user provisioned outside production, with API credentials for the token
// endpoint
type demoAccount struct {
	profile   users.NewUser
	apiKey    string
	apiSecret string
}

var demoAccounts = []demoAccount{
	{
		profile: users.NewUser{
			Email:              "amara@example.com",
			Name:               "Amara",
			CountryOfOrigin:    "Cameroon",
			CountryOfResidence: "USA",
		},
		apiKey:    auth.DemoAPIKey,
		apiSecret: auth.DemoAPISecret,
	},
	{
		profile: users.NewUser{
			Email:              "bilong@example.com",
			Name:               "Bilong",
			CountryOfOrigin:    "Cameroon",
			CountryOfResidence: "USA",
		},
		apiKey:    "demo-api-key-2",
		apiSecret: "demo-api-secret-2",
	},
}

func seedDemoData(userService *users.Service, authService *auth.Service) error {
	for _, account := range demoAccounts {
		user, err := userService.EnsureUser(account.profile)
		if err != nil {
			return err
		}
		authService.RegisterAPICredentials(account.apiKey, account.apiSecret, user.ID)
		zlog.Info().Str("user_uuid", user.UUID).Str("api_key", account.apiKey).Msg("demo account ready")
	}
	return nil
}
