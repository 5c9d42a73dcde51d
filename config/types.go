package config

// Pauses toggles transaction families off without a restart. The values are
// persisted in the parameter store so every node applies the same toggles.
type Pauses struct {
	CDP         bool `toml:"CDP" json:"cdp"`
	Liquidation bool `toml:"Liquidation" json:"liquidation"`
	Transfer    bool `toml:"Transfer" json:"transfer"`
}

// Telemetry configures the OTLP exporter.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	// Headers is a comma separated key=value list sent with every export.
	Headers  string `toml:"Headers"`
	Insecure bool   `toml:"Insecure"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// API configures the HTTP query server.
type API struct {
	Address string `toml:"Address"`
	// SubmitBlocks exposes block submission. Leave it off on read replicas.
	SubmitBlocks bool `toml:"SubmitBlocks"`
	// Per client limits; zero leaves a route group unlimited.
	QueryPerMinute  float64 `toml:"QueryPerMinute"`
	QueryBurst      int     `toml:"QueryBurst"`
	SubmitPerMinute float64 `toml:"SubmitPerMinute"`
	SubmitBurst     int     `toml:"SubmitBurst"`
}
