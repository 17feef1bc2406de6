package types

import (
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// JSON codecs for the records the session stores persist, written against
// the easyjson runtime.

func (s UploadSession) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	s.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (s UploadSession) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"sessionId":`)
	w.String(s.SessionID)
	w.RawString(`,"fileId":`)
	w.String(s.FileID)
	w.RawString(`,"objectName":`)
	w.String(s.ObjectName)
	w.RawString(`,"declaredSizeBytes":`)
	w.Int64(s.DeclaredSize)
	w.RawString(`,"contentType":`)
	w.String(s.ContentType)
	w.RawString(`,"totalParts":`)
	w.Int(s.TotalParts)
	w.RawString(`,"partSizeBytes":`)
	w.Int64(s.PartSize)
	w.RawString(`,"status":`)
	w.String(string(s.Status))
	w.RawString(`,"expiresAt":`)
	w.Raw(s.ExpiresAt.MarshalJSON())
	w.RawString(`,"createdBy":`)
	w.String(s.CreatedBy)
	w.RawString(`,"createdAt":`)
	w.Raw(s.CreatedAt.MarshalJSON())
	w.RawString(`,"updatedAt":`)
	w.Raw(s.UpdatedAt.MarshalJSON())
	w.RawString(`,"finalLocation":`)
	w.String(s.FinalLocation)
	w.RawByte('}')
}

func (s *UploadSession) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	s.UnmarshalEasyJSON(&r)
	return r.Error()
}

func (s *UploadSession) UnmarshalEasyJSON(l *jlexer.Lexer) {
	isTopLevel := l.IsStart()
	if l.IsNull() {
		if isTopLevel {
			l.Consumed()
		}
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		if l.IsNull() {
			l.Skip()
			l.WantComma()
			continue
		}
		switch key {
		case "sessionId":
			s.SessionID = l.String()
		case "fileId":
			s.FileID = l.String()
		case "objectName":
			s.ObjectName = l.String()
		case "declaredSizeBytes":
			s.DeclaredSize = l.Int64()
		case "contentType":
			s.ContentType = l.String()
		case "totalParts":
			s.TotalParts = l.Int()
		case "partSizeBytes":
			s.PartSize = l.Int64()
		case "status":
			s.Status = SessionStatus(l.String())
		case "expiresAt":
			if data := l.Raw(); l.Ok() {
				l.AddError(s.ExpiresAt.UnmarshalJSON(data))
			}
		case "createdBy":
			s.CreatedBy = l.String()
		case "createdAt":
			if data := l.Raw(); l.Ok() {
				l.AddError(s.CreatedAt.UnmarshalJSON(data))
			}
		case "updatedAt":
			if data := l.Raw(); l.Ok() {
				l.AddError(s.UpdatedAt.UnmarshalJSON(data))
			}
		case "finalLocation":
			s.FinalLocation = l.String()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
	if isTopLevel {
		l.Consumed()
	}
}

func (d UploadDescriptor) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	d.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (d UploadDescriptor) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('{')
	w.RawString(`"fileId":`)
	w.String(d.FileID)
	w.RawString(`,"objectName":`)
	w.String(d.ObjectName)
	w.RawString(`,"declaredSizeBytes":`)
	w.Int64(d.DeclaredSize)
	w.RawString(`,"contentType":`)
	w.String(d.ContentType)
	w.RawString(`,"totalParts":`)
	w.Int(d.TotalParts)
	w.RawString(`,"partSizeBytes":`)
	w.Int64(d.PartSize)
	w.RawByte('}')
}

func (d *UploadDescriptor) UnmarshalJSON(data []byte) error {
	r := jlexer.Lexer{Data: data}
	d.UnmarshalEasyJSON(&r)
	return r.Error()
}

func (d *UploadDescriptor) UnmarshalEasyJSON(l *jlexer.Lexer) {
	isTopLevel := l.IsStart()
	if l.IsNull() {
		if isTopLevel {
			l.Consumed()
		}
		l.Skip()
		return
	}
	l.Delim('{')
	for !l.IsDelim('}') {
		key := l.UnsafeFieldName(false)
		l.WantColon()
		if l.IsNull() {
			l.Skip()
			l.WantComma()
			continue
		}
		switch key {
		case "fileId":
			d.FileID = l.String()
		case "objectName":
			d.ObjectName = l.String()
		case "declaredSizeBytes":
			d.DeclaredSize = l.Int64()
		case "contentType":
			d.ContentType = l.String()
		case "totalParts":
			d.TotalParts = l.Int()
		case "partSizeBytes":
			d.PartSize = l.Int64()
		default:
			l.SkipRecursive()
		}
		l.WantComma()
	}
	l.Delim('}')
	if isTopLevel {
		l.Consumed()
	}
}
