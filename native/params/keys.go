package params

import "cdpledger/core/types"

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeySystem stores the chain-wide consensus parameters.
	ParamsKeySystem = "system/params"
	// ParamsKeyCdpPairs stores the list of configured CDP coin pairs.
	ParamsKeyCdpPairs = "cdp/pairs"
)

// ParamsKeyCdp returns the key of the parameter set of one coin pair.
func ParamsKeyCdp(pair types.CdpCoinPair) string {
	return "cdp/params/" + pair.String()
}
