package main

type config struct {
	BaseURL  string   `mapstructure:"base_url"`
	Tenant   string   `mapstructure:"tenant"`
	Secret   string   `mapstructure:"secret"`
	Interval string   `mapstructure:"interval"`
	Types    []string `mapstructure:"types"`
}
