package command

// Names of the built-in commands.
const (
	Help     = "help"
	Weather  = "weather"
	Forecast = "forecast"
	Uptime   = "uptime"
	Feedback = "feedback"
)

// Builtins returns the definitions of the commands the bot ships with.
func Builtins() []Definition {
	return []Definition{
		{
			Name:        Help,
			Description: "Display this message.",
		},
		{
			Name:          Weather,
			TakesArgument: true,
			ArgumentLabel: "city",
			Description:   "Get the current weather for a city.",
		},
		{
			Name:          Forecast,
			TakesArgument: true,
			ArgumentLabel: "city",
			Description:   "Get the current forecast for a city.",
		},
		{
			Name:        Uptime,
			Description: "Get the current uptime of this bot.",
		},
		{
			Name:          Feedback,
			TakesArgument: true,
			ArgumentLabel: "text",
			Description:   "Send feedback to the developer.",
		},
	}
}

// DefaultRegistry returns a registry holding the built-in commands.
func DefaultRegistry() *Registry {
	return MustRegistry(Builtins()...)
}
