package sim

// SnapshotSize exposes the fixed wire section length to black-box tests.
const SnapshotSize = snapshotSize
