package common

// HalvingInterval is the number of blocks between block subsidy halvings.
const HalvingInterval = 210_000
