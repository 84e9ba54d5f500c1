package approval

import "strings"

// Network codes accepted by the instruction table. TELECEL is the former VODAFONE
// network and both codes still appear in payment records.
const (
	NetworkMTN        = "MTN"
	NetworkTelecel    = "TELECEL"
	NetworkVodafone   = "VODAFONE"
	NetworkAirtelTigo = "AIRTELTIGO"
)

var networkAliases = map[string]string{
	"MTN":        NetworkMTN,
	"MTNMOMO":    NetworkMTN,
	"TELECEL":    NetworkTelecel,
	"VODAFONE":   NetworkTelecel,
	"VODA":       NetworkTelecel,
	"AIRTELTIGO": NetworkAirtelTigo,
	"AT":         NetworkAirtelTigo,
	"AIRTEL":     NetworkAirtelTigo,
	"TIGO":       NetworkAirtelTigo,
}

var instructionTable = map[string][]string{
	NetworkMTN: {
		"Dial *170# on the phone that received the payment prompt.",
		"Select option 6, My Wallet.",
		"Select option 3, My Approvals.",
		"Enter your MoMo PIN to list pending approvals.",
		"Select the IPAP payment and approve it.",
	},
	NetworkTelecel: {
		"Dial *110# on the phone that received the payment prompt.",
		"Select option 4, Make Payments.",
		"Select Approve Payment and enter your Telecel Cash PIN.",
		"Confirm the IPAP payment.",
	},
	NetworkAirtelTigo: {
		"Dial *110# on the phone that received the payment prompt.",
		"Select option 7, My Wallet.",
		"Select Pending Approvals and enter your AT Money PIN.",
		"Approve the IPAP payment.",
	},
}

var defaultInstructions = []string{
	"Check the phone that received the payment prompt.",
	"Approve the pending IPAP payment with your mobile money PIN.",
	"If no prompt arrived, open your mobile money menu and look for pending approvals.",
	"Return here and select I have Paid once the payment is approved.",
}

// NormalizeNetwork maps a network code or alias to its table key, or "" when unknown.
func NormalizeNetwork(network string) string {
	key := strings.ToUpper(strings.NewReplacer(" ", "", "-", "", "_", "").Replace(network))
	return networkAliases[key]
}

// Instructions returns the manual approval steps for a network. Unknown networks
// get the generic list.
func Instructions(network string) []string {
	steps, ok := instructionTable[NormalizeNetwork(network)]
	if !ok {
		steps = defaultInstructions
	}
	out := make([]string, len(steps))
	copy(out, steps)
	return out
}
