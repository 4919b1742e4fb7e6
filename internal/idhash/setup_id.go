package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"orb-lab/internal/domain"
)

// ComputeSetupID computes a deterministic setup_id using SHA256.
// Formula: SHA256(instrument|orb_name|risk_reward|stop_mode|size_filter|condition_type|condition_value)
// Absent optional fields hash as empty strings. Returns hex-encoded hash (64 characters).
func ComputeSetupID(instrument string, p domain.SetupParams) string {
	sizeFilter := ""
	if p.SizeFilter != nil {
		sizeFilter = formatFloat(*p.SizeFilter)
	}
	condType, condValue := "", ""
	if p.Condition != nil {
		condType = p.Condition.Type
		condValue = strings.ToUpper(p.Condition.Value)
	}

	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s",
		instrument,
		p.ORBName,
		formatFloat(p.RiskReward),
		string(p.StopMode),
		sizeFilter,
		condType,
		condValue,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeDigest returns the hex SHA256 of data, used to fingerprint inputs
// such as the feature rows a candidate was tested on.
func ComputeDigest(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// formatFloat renders the shortest representation that round-trips.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
