package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "WPEVENTS_"

type Application struct {
	Host          string        `koanf:"host"`
	Timezone      string        `koanf:"timezone"`
	Database      Database      `koanf:"db"`
	Series        Series        `koanf:"series"`
	Provider      Provider      `koanf:"provider"`
	Zoom          Zoom          `koanf:"zoom"`
	Google        Google        `koanf:"google"`
	Mailgun       Mailgun       `koanf:"mailgun"`
	Notifications Notifications `koanf:"notifications"`
	Sentry        Sentry        `koanf:"sentry"`
}

type Database struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	User   string `koanf:"user"`
	Pass   string `koanf:"pass"`
	Name   string `koanf:"name"`
	Schema string `koanf:"schema"`
}

// Series controls which optional fields are copied across a series on edit.
type Series struct {
	PropagateNotify          bool `koanf:"propagatenotify"`
	PropagateRegistrationURL bool `koanf:"propagateregistrationurl"`
}

type Provider struct {
	// Kind selects the external calendar: "zoom", "google" or empty to disable.
	Kind            string `koanf:"kind"`
	IntervalMinutes int    `koanf:"intervalminutes"`
	RegistrantPages int    `koanf:"registrantpages"`
}

type Zoom struct {
	AccountId    string `koanf:"accountid"`
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	UserId       string `koanf:"userid"`
	Webinars     bool   `koanf:"webinars"`
	BaseURL      string `koanf:"baseurl"`
	TokenURL     string `koanf:"tokenurl"`
}

type Google struct {
	CalendarId      string `koanf:"calendarid"`
	CredentialsFile string `koanf:"credentialsfile"`
}

type Mailgun struct {
	Domain  string `koanf:"domain"`
	APIKey  string `koanf:"apikey"`
	APIBase string `koanf:"apibase"`
	Sender  string `koanf:"sender"`
}

type Notifications struct {
	Enabled bool   `koanf:"enabled"`
	Cron    string `koanf:"cron"`
}

type Sentry struct {
	DSN         string `koanf:"dsn"`
	Environment string `koanf:"environment"`
}

func defaults() Application {
	return Application{
		Host:     "http://localhost:8181",
		Timezone: "UTC",
		Database: Database{
			Host:   "localhost",
			Port:   5432,
			User:   "wpevents",
			Pass:   "",
			Name:   "wpevents",
			Schema: "events",
		},
		Series: Series{
			PropagateNotify:          false,
			PropagateRegistrationURL: true,
		},
		Provider: Provider{
			IntervalMinutes: 15,
			RegistrantPages: 20,
		},
		Zoom: Zoom{
			UserId:   "me",
			BaseURL:  "https://api.zoom.us/v2",
			TokenURL: "https://zoom.us/oauth/token",
		},
		Google: Google{
			CalendarId: "primary",
		},
		Notifications: Notifications{
			Enabled: true,
			Cron:    "0 7 * * *",
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err := k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	return app, nil
}
