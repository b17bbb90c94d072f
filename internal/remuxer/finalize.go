package remuxer

// finalize completes output tracks and writes the output container.
func (r *Remuxer) finalize(s *session) error {
	for _, ot := range s.output.tracks {
		err := s.output.handle.FlushTrailing(ot.id, ot.lastSampleDelta)
		if err != nil {
			return newError(KindContainer, "failed to flush the last sample of track %d: %w", ot.id, err)
		}
	}

	n := 0
	for _, in := range s.inputs {
		for _, it := range in.tracks {
			ot := s.output.tracks[n]
			n++

			err := s.output.handle.CopyEditList(ot.id, in.handle, it.id)
			if err != nil {
				return newError(KindContainer, "failed to copy the edit list of track %d of %s: %w", it.id, in.path, err)
			}
		}
	}

	printed := false

	err := s.output.handle.Finalize(func(done uint64, total uint64) {
		if total == 0 {
			return
		}
		r.printProgress("Finalizing: [%5.2f%%]\r", float64(done)*100/float64(total))
		printed = true
	})
	if printed {
		r.printProgress("\n")
	}
	if err != nil {
		return newError(KindContainer, "failed to finalize output file %s: %w", s.output.path, err)
	}

	return nil
}
