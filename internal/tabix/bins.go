package tabix

// Standard six-level binning scheme: bin widths 16kb, 128kb, 1Mb, 8Mb, 64Mb
// and 512Mb, per the SAM/tabix index specification.
const (
	linearShift = 14
	maxCoord    = 1 << 29
)

// reg2bin returns the smallest bin fully containing the zero-based half-open
// interval [beg,end).
func reg2bin(beg, end int64) uint32 {
	end--
	switch {
	case beg>>14 == end>>14:
		return uint32(((1<<15)-1)/7 + beg>>14)
	case beg>>17 == end>>17:
		return uint32(((1<<12)-1)/7 + beg>>17)
	case beg>>20 == end>>20:
		return uint32(((1<<9)-1)/7 + beg>>20)
	case beg>>23 == end>>23:
		return uint32(((1<<6)-1)/7 + beg>>23)
	case beg>>26 == end>>26:
		return uint32(((1<<3)-1)/7 + beg>>26)
	}
	return 0
}

// reg2bins returns every bin that may hold records overlapping [beg,end).
func reg2bins(beg, end int64) []uint32 {
	if beg < 0 {
		beg = 0
	}
	if end > maxCoord {
		end = maxCoord
	}
	if end <= beg {
		return nil
	}
	end--
	bins := make([]uint32, 0, ((1<<18)-1)/7)
	bins = append(bins, 0)
	for k := 1 + beg>>26; k <= 1+end>>26; k++ {
		bins = append(bins, uint32(k))
	}
	for k := 9 + beg>>23; k <= 9+end>>23; k++ {
		bins = append(bins, uint32(k))
	}
	for k := 73 + beg>>20; k <= 73+end>>20; k++ {
		bins = append(bins, uint32(k))
	}
	for k := 585 + beg>>17; k <= 585+end>>17; k++ {
		bins = append(bins, uint32(k))
	}
	for k := 4681 + beg>>14; k <= 4681+end>>14; k++ {
		bins = append(bins, uint32(k))
	}
	return bins
}
