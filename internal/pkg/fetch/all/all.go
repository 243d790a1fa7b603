// Package all imports every source adapter for side-effect registration.
//
// Import this package from your main to ensure all adapters are registered:
//
//	import _ "github.com/akovalev/minutecast/internal/pkg/fetch/all"
package all

import (
	_ "github.com/akovalev/minutecast/internal/pkg/fetch/extractor"
	_ "github.com/akovalev/minutecast/internal/pkg/fetch/matchcentre"
	_ "github.com/akovalev/minutecast/internal/pkg/fetch/statsapi"
)
