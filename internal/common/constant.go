package common

// MinPasswordLength is the shortest password accepted on change.
const MinPasswordLength = 4
