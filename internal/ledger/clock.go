package ledger

import "time"

// nowFunc is swapped in tests to pin the trading date.
var nowFunc = time.Now
