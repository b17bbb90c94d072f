package remuxer

import (
	"github.com/bluenviron/remuxer/internal/container"
	"github.com/bluenviron/remuxer/internal/logger"
)

func sameBrandAndVersion(a container.MovieParams, b container.MovieParams) bool {
	return a.MajorBrand == b.MajorBrand && a.MinorVersion == b.MinorVersion
}

// reconcileMovieParams computes the parameters of the output movie.
//
// The major brand and minor version are picked by majority vote,
// ties are won by the pair that appears first.
// Compatible brands are merged in order of appearance, without duplicates.
// The timescale is the largest one.
func reconcileMovieParams(inputs []container.MovieParams) container.MovieParams {
	var ret container.MovieParams
	bestCount := 0

	for i, in := range inputs {
		counted := false
		for _, prev := range inputs[:i] {
			if sameBrandAndVersion(prev, in) {
				counted = true
				break
			}
		}
		if counted {
			continue
		}

		count := 0
		for _, other := range inputs[i:] {
			if sameBrandAndVersion(other, in) {
				count++
			}
		}

		if count > bestCount {
			bestCount = count
			ret.MajorBrand = in.MajorBrand
			ret.MinorVersion = in.MinorVersion
		}
	}

	for _, in := range inputs {
		for _, brand := range in.CompatibleBrands {
			if brand.IsZero() || containsBrand(ret.CompatibleBrands, brand) {
				continue
			}
			ret.CompatibleBrands = append(ret.CompatibleBrands, brand)
		}

		if in.Timescale > ret.Timescale {
			ret.Timescale = in.Timescale
		}
	}

	return ret
}

func containsBrand(brands []container.Brand, brand container.Brand) bool {
	for _, b := range brands {
		if b == brand {
			return true
		}
	}
	return false
}

func (r *Remuxer) setMovieParams(s *session) error {
	params := make([]container.MovieParams, len(s.inputs))
	for i, in := range s.inputs {
		params[i] = in.params
	}

	s.output.params = reconcileMovieParams(params)

	r.Log(logger.Debug, "output brand '%s', version %d, compatible brands %v",
		s.output.params.MajorBrand, s.output.params.MinorVersion, s.output.params.CompatibleBrands)

	err := s.output.handle.SetMovieParams(s.output.params)
	if err != nil {
		return newError(KindContainer, "failed to set movie parameters: %w", err)
	}

	for _, in := range s.inputs {
		if len(in.metadata) == 0 {
			continue
		}

		err = s.output.handle.ImportMetadata(in.metadata)
		if err != nil {
			return newError(KindContainer, "failed to import metadata from %s: %w", in.path, err)
		}
	}

	return nil
}
