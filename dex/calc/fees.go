// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package calc

// Serialized sizes of standard transaction components, in bytes. Segwit
// values are in virtual bytes.
const (
	// TxOverhead is version (4) + locktime (4) + input count (1) + output
	// count (1).
	TxOverhead uint64 = 10
	// SegwitOverhead is the TxOverhead plus the marker and flag bytes at
	// witness discount, rounded up.
	SegwitOverhead uint64 = 11

	// P2PKHInputSize is outpoint (36) + script length (1) + sigScript (107) +
	// sequence (4).
	P2PKHInputSize uint64 = 148
	// P2WPKHInputVSize is outpoint (36) + script length (1) + sequence (4) +
	// witness (108) / 4, rounded.
	P2WPKHInputVSize uint64 = 68

	// P2PKHOutputSize is value (8) + script length (1) + pkScript (25).
	P2PKHOutputSize uint64 = 34
	// P2WPKHOutputSize is value (8) + script length (1) + pkScript (22).
	P2WPKHOutputSize uint64 = 31

	// DefaultDustThreshold is the output value in satoshis at or below which
	// an output is uneconomical to spend.
	DefaultDustThreshold uint64 = 546
)

// TxVSize estimates the virtual size of a transaction with the given number
// of standard pay-to-pubkey-hash inputs and outputs.
func TxVSize(inputs, outputs int, segwit bool) uint64 {
	if segwit {
		return SegwitOverhead + uint64(inputs)*P2WPKHInputVSize + uint64(outputs)*P2WPKHOutputSize
	}
	return TxOverhead + uint64(inputs)*P2PKHInputSize + uint64(outputs)*P2PKHOutputSize
}

// TxFee is the fee for a transaction of the given shape at feeRate atoms per
// virtual byte.
func TxFee(inputs, outputs int, feeRate uint64, segwit bool) uint64 {
	return TxVSize(inputs, outputs, segwit) * feeRate
}

// GasFee is the fee for gas units at gasPrice, in the smallest unit of the
// fee asset.
func GasFee(gas, gasPrice uint64) uint64 {
	return gas * gasPrice
}
