package sim

import "slices"

// infoStorage says where an attachment's bytes live.
type infoStorage uint8

const (
	infoNone   infoStorage = iota // undefined slack slot
	infoInline                    // borrowed from Message.inline, never released
	infoPooled                    // block from the partition's attachment free list
	infoHeap                      // general allocator
)

// infoRecord is one attachment. buf always has exactly the attachment's size.
type infoRecord struct {
	typ     InfoType
	storage infoStorage
	buf     []byte
}

func (r *infoRecord) release(a *pools) {
	switch r.storage {
	case infoPooled:
		releaseInfo(a, r.buf, true)
	case infoHeap:
		releaseInfo(a, r.buf, false)
	}
	r.storage = infoNone
	r.buf = nil
}

func (m *Message) inlineInUse() bool {
	for i := range m.infos {
		if m.infos[i].storage == infoInline {
			return true
		}
	}
	return false
}

// newInfo allocates zeroed storage for an attachment. Only the default
// attachment may borrow the inline buffer.
func (m *Message) newInfo(typ InfoType, size int) (infoRecord, error) {
	if typ == InfoDefault && size <= InlineInfoSize && !m.inlineInUse() {
		buf := m.inline[:size]
		clear(buf)
		return infoRecord{typ: typ, storage: infoInline, buf: buf}, nil
	}
	buf, pooled, err := acquireInfo(m.alloc(), size)
	if err != nil {
		return infoRecord{}, err
	}
	storage := infoHeap
	if pooled {
		storage = infoPooled
	}
	return infoRecord{typ: typ, storage: storage, buf: buf}, nil
}

// refill gives the record at idx a fresh zeroed buffer of size bytes. An
// inline record that still fits is resized in place. On failure the slot is
// erased.
func (m *Message) refill(idx int, typ InfoType, size int) ([]byte, error) {
	rec := &m.infos[idx]
	if rec.storage == infoInline && size <= InlineInfoSize {
		rec.typ = typ
		rec.buf = m.inline[:size]
		clear(rec.buf)
		return rec.buf, nil
	}
	rec.release(m.alloc())
	fresh, err := m.newInfo(typ, size)
	if err != nil {
		m.infos = slices.Delete(m.infos, idx, idx+1)
		return nil, err
	}
	m.infos[idx] = fresh
	return fresh.buf, nil
}

func (m *Message) indexOfInfo(typ InfoType, lo, hi int) int {
	for i := lo; i < hi; i++ {
		if m.infos[i].typ == typ {
			return i
		}
	}
	return -1
}

// AddInfo attaches a zero-filled buffer of exactly size bytes under typ and
// returns it. An existing record with the same tag is resized and reused;
// otherwise an undefined slack slot is reused before a new record is
// appended. The default attachment is kept first and lives in the inline
// buffer when it fits. The returned slice is valid until the next change to
// the attachment list.
func (m *Message) AddInfo(size int, typ InfoType) ([]byte, error) {
	m.mustBeActive("Message.AddInfo")
	if size <= 0 {
		usagef(m, "Message.AddInfo", "attachment size must be > 0, got %d", size)
	}
	if typ == InfoUndefined {
		usagef(m, "Message.AddInfo", "cannot attach the undefined tag")
	}
	if idx := m.indexOfInfo(typ, 0, len(m.infos)); idx >= 0 {
		return m.refill(idx, typ, size)
	}
	if typ != InfoDefault {
		if idx := m.indexOfInfo(InfoUndefined, 0, len(m.infos)); idx >= 0 {
			return m.refill(idx, typ, size)
		}
	}
	rec, err := m.newInfo(typ, size)
	if err != nil {
		return nil, err
	}
	if typ == InfoDefault {
		m.infos = slices.Insert(m.infos, 0, rec)
	} else {
		m.infos = append(m.infos, rec)
	}
	return rec.buf, nil
}

// Info returns the attachment tagged typ, or nil.
func (m *Message) Info(typ InfoType) []byte {
	m.mustBeLive("Message.Info")
	if typ == InfoUndefined {
		return nil
	}
	if idx := m.indexOfInfo(typ, 0, len(m.infos)); idx >= 0 {
		return m.infos[idx].buf
	}
	return nil
}

// InfoInRange returns the attachment tagged typ among records [lo, hi).
func (m *Message) InfoInRange(typ InfoType, lo, hi int) []byte {
	m.mustBeLive("Message.InfoInRange")
	lo, hi = m.clampInfoRange(lo, hi)
	if idx := m.indexOfInfo(typ, lo, hi); idx >= 0 {
		return m.infos[idx].buf
	}
	return nil
}

// NumInfos returns the number of attachment records, slack slots included.
func (m *Message) NumInfos() int { return len(m.infos) }

// InfoAt returns the tag and bytes of record i.
func (m *Message) InfoAt(i int) (InfoType, []byte) {
	return m.infos[i].typ, m.infos[i].buf
}

// InfoInline reports whether the attachment tagged typ lives in the inline buffer.
func (m *Message) InfoInline(typ InfoType) bool {
	if idx := m.indexOfInfo(typ, 0, len(m.infos)); idx >= 0 {
		return m.infos[idx].storage == infoInline
	}
	return false
}

// RemoveInfo releases the attachment tagged typ and erases its record,
// keeping the order of the others. It reports whether one was found.
func (m *Message) RemoveInfo(typ InfoType) bool {
	m.mustBeActive("Message.RemoveInfo")
	if typ == InfoUndefined {
		return false
	}
	idx := m.indexOfInfo(typ, 0, len(m.infos))
	if idx < 0 {
		return false
	}
	m.infos[idx].release(m.alloc())
	m.infos[idx].typ = InfoUndefined
	m.infos = slices.Delete(m.infos, idx, idx+1)
	return true
}

// RemoveInfoInRange releases the attachment tagged typ among records
// [lo, hi) of a packed message. The slot stays in place as undefined slack
// so the other sub-messages' ranges remain valid.
func (m *Message) RemoveInfoInRange(typ InfoType, lo, hi int) bool {
	m.mustBeActive("Message.RemoveInfoInRange")
	if typ == InfoUndefined {
		return false
	}
	lo, hi = m.clampInfoRange(lo, hi)
	idx := m.indexOfInfo(typ, lo, hi)
	if idx < 0 {
		return false
	}
	m.infos[idx].release(m.alloc())
	m.infos[idx].typ = InfoUndefined
	return true
}

func (m *Message) clampInfoRange(lo, hi int) (int, int) {
	lo = max(lo, 0)
	hi = min(hi, len(m.infos))
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// copyInfo duplicates rec into fresh storage owned by m.
func (m *Message) copyInfo(rec *infoRecord) (infoRecord, error) {
	if rec.typ == InfoUndefined {
		return infoRecord{}, nil
	}
	fresh, err := m.newInfo(rec.typ, len(rec.buf))
	if err != nil {
		return infoRecord{}, err
	}
	copy(fresh.buf, rec.buf)
	return fresh, nil
}

func (m *Message) clearInfos() {
	a := m.alloc()
	for i := range m.infos {
		m.infos[i].release(a)
		m.infos[i] = infoRecord{}
	}
	m.infos = m.infos[:0]
}

// CopyInfos replaces dst's attachments with deep copies of src's, slack
// slots included.
func CopyInfos(dst, src *Message) error {
	dst.mustBeActive("CopyInfos")
	src.mustBeLive("CopyInfos")
	dst.clearInfos()
	for i := range src.infos {
		rec, err := dst.copyInfo(&src.infos[i])
		if err != nil {
			return err
		}
		dst.infos = append(dst.infos, rec)
	}
	return nil
}

// AppendInfos appends deep copies of src's attachments to dst. Slack slots
// are dropped. With skipDefault, src's default attachment is not copied when
// dst already has one.
func AppendInfos(dst, src *Message, skipDefault bool) error {
	dst.mustBeActive("AppendInfos")
	src.mustBeLive("AppendInfos")
	hasDefault := dst.indexOfInfo(InfoDefault, 0, len(dst.infos)) >= 0
	for i := range src.infos {
		rec := &src.infos[i]
		if rec.typ == InfoUndefined {
			continue
		}
		if rec.typ == InfoDefault && skipDefault && hasDefault {
			continue
		}
		fresh, err := dst.copyInfo(rec)
		if err != nil {
			return err
		}
		dst.infos = append(dst.infos, fresh)
		if rec.typ == InfoDefault {
			hasDefault = true
		}
	}
	return nil
}
