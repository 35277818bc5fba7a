package marketdata

import "strings"

// quote suffixes to strip from contract tickers, longest first so USDT wins
// over USD.
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "FDUSD", "USD", "PERP"}

// multiplier prefixes venues prepend to low-priced assets (1000PEPEUSDT
// trades a thousand PEPE per contract). Stripped for resolution only.
var multiplierPrefixes = []string{"1000000", "100000", "10000", "1000"}

// BaseSymbol reduces a venue contract ticker to the base asset it trades:
// "1000PEPEUSDT" -> "PEPE", "BTCUSDT" -> "BTC".
func BaseSymbol(contract string) string {
	base := strings.ToUpper(strings.TrimSpace(contract))
	for _, suffix := range quoteSuffixes {
		if len(base) > len(suffix) && strings.HasSuffix(base, suffix) {
			base = base[:len(base)-len(suffix)]
			break
		}
	}
	for _, prefix := range multiplierPrefixes {
		if len(base) > len(prefix) && strings.HasPrefix(base, prefix) {
			base = base[len(prefix):]
			break
		}
	}
	return base
}

// staticIDs maps base symbols to CoinGecko ids for the assets that dominate
// perp open interest. Anything missing here falls through to the search API.
var staticIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"XRP":   "ripple",
	"BNB":   "binancecoin",
	"DOGE":  "dogecoin",
	"ADA":   "cardano",
	"TRX":   "tron",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"DOT":   "polkadot",
	"TON":   "the-open-network",
	"MATIC": "matic-network",
	"POL":   "polygon-ecosystem-token",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"NEAR":  "near",
	"UNI":   "uniswap",
	"APT":   "aptos",
	"ICP":   "internet-computer",
	"ETC":   "ethereum-classic",
	"FIL":   "filecoin",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"ATOM":  "cosmos",
	"STX":   "blockstack",
	"IMX":   "immutable-x",
	"HBAR":  "hedera-hashgraph",
	"VET":   "vechain",
	"INJ":   "injective-protocol",
	"SUI":   "sui",
	"SEI":   "sei-network",
	"TIA":   "celestia",
	"RUNE":  "thorchain",
	"AAVE":  "aave",
	"MKR":   "maker",
	"LDO":   "lido-dao",
	"SNX":   "havven",
	"CRV":   "curve-dao-token",
	"GRT":   "the-graph",
	"ALGO":  "algorand",
	"FTM":   "fantom",
	"S":     "sonic-3",
	"SAND":  "the-sandbox",
	"MANA":  "decentraland",
	"AXS":   "axie-infinity",
	"GALA":  "gala",
	"APE":   "apecoin",
	"PEPE":  "pepe",
	"SHIB":  "shiba-inu",
	"BONK":  "bonk",
	"WIF":   "dogwifcoin",
	"FLOKI": "floki",
	"ORDI":  "ordinals",
	"WLD":   "worldcoin-wld",
	"JUP":   "jupiter-exchange-solana",
	"PYTH":  "pyth-network",
	"JTO":   "jito-governance-token",
	"ENA":   "ethena",
	"ONDO":  "ondo-finance",
	"TAO":   "bittensor",
	"RENDER": "render-token",
	"FET":   "fetch-ai",
	"AR":    "arweave",
	"KAS":   "kaspa",
	"XLM":   "stellar",
	"EOS":   "eos",
	"XTZ":   "tezos",
	"THETA": "theta-token",
	"CHZ":   "chiliz",
	"DYDX":  "dydx-chain",
	"GMX":   "gmx",
	"COMP":  "compound-governance-token",
	"SUSHI": "sushi",
	"1INCH": "1inch",
	"ZRX":   "0x",
	"ENS":   "ethereum-name-service",
	"MINA":  "mina-protocol",
	"FLOW":  "flow",
	"EGLD":  "elrond-erd-2",
	"NEO":   "neo",
	"IOTA":  "iota",
	"KSM":   "kusama",
	"ZEC":   "zcash",
	"DASH":  "dash",
	"XMR":   "monero",
}
