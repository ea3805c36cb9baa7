package platform

import "encoding/json"

func decodeJSON(body []byte, out interface{}) error {
	return json.Unmarshal(body, out)
}

func encodeJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
