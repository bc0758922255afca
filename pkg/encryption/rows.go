package encryption

import (
	"fmt"

	"github.com/topicflow/topicflow/pkg/model"
	"github.com/topicflow/topicflow/pkg/value"
)

// EncryptRow applies the method of every encrypted factor of topic to its value in data.
// Absent factors are skipped.
func (r *Registry) EncryptRow(topic *model.Topic, data value.Map) (value.Map, error) {
	return r.transformRow(topic, data, r.Encrypt)
}

// DecryptRow reverses EncryptRow where the methods allow it.
func (r *Registry) DecryptRow(topic *model.Topic, data value.Map) (value.Map, error) {
	return r.transformRow(topic, data, r.Decrypt)
}

func (r *Registry) transformRow(topic *model.Topic, data value.Map, transform func(string, value.Value) (value.Value, error)) (value.Map, error) {
	for _, f := range topic.EncryptedFactors() {
		names := value.SplitName(f.Name)
		v := data.GetPath(names)
		if value.IsNone(v) {
			continue
		}
		out, err := transform(f.Encrypt, v)
		if err != nil {
			return nil, fmt.Errorf("factor '%s': %w", f.Name, err)
		}
		data = data.SetPath(names, out)
	}
	return data, nil
}
