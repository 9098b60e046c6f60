package drop

// Storage deposits follow a rent-exempt model: a fixed per-byte price
// over the serialized record plus per-record overhead, paid at creation
// and refunded in full when the record is destroyed.
const (
	rentOverheadBytes = 128
	rentPerByte       = 6960

	// Serialized record sizes, including the 8-byte record tag.
	distributionBytes = 205
	claimRecordBytes  = 16
	counterBytes      = 12

	DistributionRent uint64 = (rentOverheadBytes + distributionBytes) * rentPerByte
	ClaimRecordRent  uint64 = (rentOverheadBytes + claimRecordBytes) * rentPerByte
	CounterRent      uint64 = (rentOverheadBytes + counterBytes) * rentPerByte
)
