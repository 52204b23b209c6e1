package video

type TagParser struct {
}

// Parse fills p.Header for audio and video packets. Meta packets carry no
// codec header and are left untouched.
func (tp *TagParser) Parse(p *Packet) error {
	if p.DataType == DATA_TYPE_META {
		return nil
	}
	var tag TagHeader
	err := tag.ParsePacketHeader(p.Data, p.DataType)
	if err != nil {
		return err
	}
	p.Header = &tag
	return nil
}
