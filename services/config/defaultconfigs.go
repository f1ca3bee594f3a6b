package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

// Summary interval in seconds.
const cfgPico = `{
  "monitor": {
      "interval": 10
  }
}`

const cfgHost = `{
  "monitor": {
      "interval": 2
  }
}`

var embeddedConfigs = map[string][]byte{
	"pico":        []byte(cfgPico),
	"pico_ina219": []byte(cfgPico),
	"host_sim":    []byte(cfgHost),
}
